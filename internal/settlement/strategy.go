package settlement

import (
	"fmt"
	"sync"

	"fundraising-escrow/internal/model"
)

// Award is one prize transfer planned by a strategy.
type Award struct {
	Winner model.Address
	Ranks  []int
	From   model.Address // custody account to debit
	Asset  model.AssetType
	Amount uint64
}

// Strategy plans the prize payouts of one prize mode.
type Strategy interface {
	// Mode returns the prize mode this strategy pays.
	Mode() model.PrizeMode

	// Plan returns the prize transfers for room. prizeShare is the pool carved
	// out of entry fees and is zero for modes that do not use it.
	Plan(room *model.Room, prizeShare uint64, winners []model.Address) ([]Award, error)
}

// Registry maps prize modes to their strategies.
type Registry struct {
	strategies map[model.PrizeMode]Strategy
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[model.PrizeMode]Strategy)}
}

// Register adds a strategy, replacing any previous one for the same mode.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return fmt.Errorf("cannot register nil strategy")
	}
	if s.Mode() == "" {
		return fmt.Errorf("strategy mode cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Mode()] = s
	return nil
}

// Get returns the strategy for mode.
func (r *Registry) Get(mode model.PrizeMode) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[mode]
	return s, ok
}

// Modes returns the registered prize modes.
func (r *Registry) Modes() []model.PrizeMode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modes := make([]model.PrizeMode, 0, len(r.strategies))
	for m := range r.strategies {
		modes = append(modes, m)
	}
	return modes
}

// DefaultRegistry holds the pool and asset strategies.
var DefaultRegistry = func() *Registry {
	r := NewRegistry()
	_ = r.Register(PoolStrategy{})
	_ = r.Register(AssetStrategy{})
	return r
}()
