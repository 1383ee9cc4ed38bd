package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/pkg/lock"
	"fundraising-escrow/internal/store"
)

// MaxApprovedAssets bounds the approved asset registry.
const MaxApprovedAssets = 50

// platformLockKey serializes writes to the singleton platform record.
const platformLockKey = "platform"

// PolicyUpdate changes any subset of the platform settings. Nil fields are kept.
type PolicyUpdate struct {
	PlatformWallet  *model.Address `json:"platform_wallet,omitempty"`
	CharityWallet   *model.Address `json:"charity_wallet,omitempty"`
	PlatformFeeBps  *uint16        `json:"platform_fee_bps,omitempty"`
	MaxHostFeeBps   *uint16        `json:"max_host_fee_bps,omitempty"`
	MaxPrizePoolBps *uint16        `json:"max_prize_pool_bps,omitempty"`
	MinCharityBps   *uint16        `json:"min_charity_bps,omitempty"`
}

// PlatformService manages the platform-wide record the room lifecycle reads.
type PlatformService struct {
	runner
}

// NewPlatformService creates a PlatformService.
func NewPlatformService(st store.Store, locks *lock.KeyLock, pub Publisher, clock Clock) *PlatformService {
	return &PlatformService{runner: newRunner(st, locks, pub, clock)}
}

// Bootstrap stores seed unless a platform record already exists.
// It reports whether seed was written.
func (s *PlatformService) Bootstrap(ctx context.Context, seed *model.PlatformConfig) (bool, error) {
	if seed.Admin.IsZero() || seed.PlatformWallet.IsZero() || seed.CharityWallet.IsZero() {
		return false, guard.ErrInvalidAddress
	}
	if err := guard.ValidateFeePolicy(seed.Policy); err != nil {
		return false, err
	}
	if len(seed.ApprovedAssets) > MaxApprovedAssets {
		return false, guard.ErrMaxTokensReached
	}

	created := false
	err := s.run(ctx, "bootstrap", platformLockKey, func(tx store.Tx, _ time.Time, _ func(*model.Event)) error {
		_, err := tx.Platform().Get(ctx)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, store.ErrPlatformNotInitialized):
			return fmt.Errorf("failed to load platform config: %w", err)
		}
		created = true
		return tx.Platform().Save(ctx, seed)
	})
	if err != nil {
		return false, err
	}
	if created {
		log.Info().
			Str("admin", string(seed.Admin)).
			Int("approved_assets", len(seed.ApprovedAssets)).
			Msg("Platform initialized")
	}
	return created, nil
}

// Get returns the current platform record.
func (s *PlatformService) Get(ctx context.Context) (*model.PlatformConfig, error) {
	var cfg *model.PlatformConfig
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		cfg, err = loadPlatform(ctx, tx)
		return err
	})
	return cfg, err
}

// FeePolicy returns a snapshot of the fee policy.
func (s *PlatformService) FeePolicy(ctx context.Context) (model.FeePolicy, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return model.FeePolicy{}, err
	}
	return cfg.Policy, nil
}

// IsPaused reports whether the emergency pause is on.
func (s *PlatformService) IsPaused(ctx context.Context) (bool, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return cfg.Paused, nil
}

// IsAssetApproved reports whether rooms may collect fees in asset.
func (s *PlatformService) IsAssetApproved(ctx context.Context, asset model.AssetType) (bool, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return isApproved(cfg, asset), nil
}

// IsAdmin reports whether caller is the platform admin.
func (s *PlatformService) IsAdmin(ctx context.Context, caller model.Address) (bool, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return false, err
	}
	return guard.VerifyAuthority(caller, cfg.Admin) == nil, nil
}

// UpdateFeePolicy applies u. The admin and the upgrade authority may call it.
func (s *PlatformService) UpdateFeePolicy(ctx context.Context, caller model.Address, u PolicyUpdate) (*model.PlatformConfig, error) {
	var cfg *model.PlatformConfig
	err := s.run(ctx, "update_fee_policy", platformLockKey, func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		var err error
		cfg, err = loadPlatform(ctx, tx)
		if err != nil {
			return err
		}
		if guard.VerifyAuthority(caller, cfg.Admin) != nil && guard.VerifyAuthority(caller, cfg.UpgradeAuthority) != nil {
			return guard.ErrUnauthorized
		}

		if u.PlatformWallet != nil {
			if u.PlatformWallet.IsZero() {
				return guard.ErrInvalidAddress
			}
			cfg.PlatformWallet = *u.PlatformWallet
		}
		if u.CharityWallet != nil {
			if u.CharityWallet.IsZero() {
				return guard.ErrInvalidAddress
			}
			cfg.CharityWallet = *u.CharityWallet
		}
		if u.PlatformFeeBps != nil {
			cfg.Policy.PlatformFeeBps = *u.PlatformFeeBps
		}
		if u.MaxHostFeeBps != nil {
			cfg.Policy.MaxHostFeeBps = *u.MaxHostFeeBps
		}
		if u.MaxPrizePoolBps != nil {
			cfg.Policy.MaxPrizePoolBps = *u.MaxPrizePoolBps
		}
		if u.MinCharityBps != nil {
			cfg.Policy.MinCharityBps = *u.MinCharityBps
		}
		if err := guard.ValidateFeePolicy(cfg.Policy); err != nil {
			return err
		}

		if err := tx.Platform().Save(ctx, cfg); err != nil {
			return err
		}
		emit(newEvent(model.EventFeePolicyUpdated, "", now, map[string]any{
			"updated_by":         string(caller),
			"platform_wallet":    string(cfg.PlatformWallet),
			"charity_wallet":     string(cfg.CharityWallet),
			"platform_fee_bps":   cfg.Policy.PlatformFeeBps,
			"max_host_fee_bps":   cfg.Policy.MaxHostFeeBps,
			"max_prize_pool_bps": cfg.Policy.MaxPrizePoolBps,
			"min_charity_bps":    cfg.Policy.MinCharityBps,
		}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetPause toggles the emergency pause. Admin only.
func (s *PlatformService) SetPause(ctx context.Context, caller model.Address, paused bool) error {
	return s.run(ctx, "set_pause", platformLockKey, func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		cfg, err := loadPlatform(ctx, tx)
		if err != nil {
			return err
		}
		if err := guard.VerifyAuthority(caller, cfg.Admin); err != nil {
			return err
		}
		cfg.Paused = paused
		if err := tx.Platform().Save(ctx, cfg); err != nil {
			return err
		}
		emit(newEvent(model.EventEmergencyPauseToggled, "", now, map[string]any{
			"paused": paused,
			"admin":  string(caller),
		}))
		log.Warn().Bool("paused", paused).Str("admin", string(caller)).Msg("Emergency pause toggled")
		return nil
	})
}

// ApproveAsset adds asset to the registry. Admin only.
func (s *PlatformService) ApproveAsset(ctx context.Context, caller model.Address, asset model.AssetType) error {
	if asset == "" {
		return guard.ErrInvalidTokenMint
	}
	return s.run(ctx, "approve_asset", platformLockKey, func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		cfg, err := loadPlatform(ctx, tx)
		if err != nil {
			return err
		}
		if err := guard.VerifyAuthority(caller, cfg.Admin); err != nil {
			return err
		}
		if isApproved(cfg, asset) {
			return guard.ErrTokenAlreadyApproved
		}
		if len(cfg.ApprovedAssets) >= MaxApprovedAssets {
			return guard.ErrMaxTokensReached
		}
		cfg.ApprovedAssets = append(cfg.ApprovedAssets, asset)
		if err := tx.Platform().Save(ctx, cfg); err != nil {
			return err
		}
		emit(newEvent(model.EventAssetApproved, "", now, map[string]any{
			"asset": string(asset),
			"count": len(cfg.ApprovedAssets),
		}))
		return nil
	})
}

// RemoveAsset drops asset from the registry. Admin only. Existing rooms keep
// their fee asset.
func (s *PlatformService) RemoveAsset(ctx context.Context, caller model.Address, asset model.AssetType) error {
	return s.run(ctx, "remove_asset", platformLockKey, func(tx store.Tx, now time.Time, emit func(*model.Event)) error {
		cfg, err := loadPlatform(ctx, tx)
		if err != nil {
			return err
		}
		if err := guard.VerifyAuthority(caller, cfg.Admin); err != nil {
			return err
		}
		kept := cfg.ApprovedAssets[:0:0]
		for _, a := range cfg.ApprovedAssets {
			if a != asset {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(cfg.ApprovedAssets) {
			return guard.ErrTokenNotApproved
		}
		cfg.ApprovedAssets = kept
		if err := tx.Platform().Save(ctx, cfg); err != nil {
			return err
		}
		emit(newEvent(model.EventAssetRemoved, "", now, map[string]any{
			"asset": string(asset),
			"count": len(kept),
		}))
		return nil
	})
}
