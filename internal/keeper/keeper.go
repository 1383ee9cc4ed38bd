// Package keeper ends expired rooms whose winners were declared but whose
// host never called end.
package keeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/config"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/service"
)

// Rooms is the part of service.RoomService the keeper drives.
type Rooms interface {
	ListExpired(ctx context.Context, limit int) ([]*model.Room, error)
	End(ctx context.Context, caller, roomKey model.Address, in service.EndInput) (*model.Settlement, error)
}

// Keeper periodically settles expired rooms.
type Keeper struct {
	rooms    Rooms
	caller   model.Address
	batch    int
	interval time.Duration
	timeout  time.Duration
	sched    gocron.Scheduler
}

// New creates a keeper from configuration.
func New(cfg config.KeeperConfig, rooms Rooms) *Keeper {
	batch := cfg.Batch
	if batch <= 0 {
		batch = 50
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Keeper{
		rooms:    rooms,
		caller:   model.Address(cfg.Address),
		batch:    batch,
		interval: interval,
		timeout:  interval,
	}
}

// Start schedules the sweep. Overlapping runs are skipped.
func (k *Keeper) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(k.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
			defer cancel()
			if _, err := k.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Keeper sweep failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule keeper: %w", err)
	}
	sched.Start()
	k.sched = sched

	log.Info().Dur("interval", k.interval).Str("caller", string(k.caller)).Msg("Keeper started")
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep.
func (k *Keeper) Stop() error {
	if k.sched == nil {
		return nil
	}
	return k.sched.Shutdown()
}

// RunOnce ends one batch of expired rooms with declared winners. Rooms
// without winners are never listed and stay with their host. A failing room
// does not stop the sweep. It returns the number of rooms ended.
func (k *Keeper) RunOnce(ctx context.Context) (int, error) {
	rooms, err := k.rooms.ListExpired(ctx, k.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired rooms: %w", err)
	}

	ended := 0
	for _, room := range rooms {
		res, err := k.rooms.End(ctx, k.caller, room.Key, service.EndInput{})
		if err != nil {
			log.Warn().Err(err).Str("room_key", string(room.Key)).Msg("Failed to end expired room")
			continue
		}
		ended++
		log.Info().
			Str("room_key", string(room.Key)).
			Uint64("charity", res.CharityShare).
			Msg("Ended expired room")
	}
	return ended, nil
}
