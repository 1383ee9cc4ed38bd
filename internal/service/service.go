// Package service implements the escrow operations on top of the
// transactional store. Every operation runs as one all-or-nothing unit and
// is serialized per room.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/events"
	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/metrics"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/pkg/lock"
	"fundraising-escrow/internal/store"
)

// LockWait bounds how long an operation waits for its room.
const LockWait = 5 * time.Second

// Clock supplies the current time. Room checkpoints are unix seconds.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// Publisher receives events after the operation that produced them commits.
type Publisher interface {
	Dispatch(ctx context.Context, evs []*model.Event)
}

type nopPublisher struct{}

func (nopPublisher) Dispatch(context.Context, []*model.Event) {}

// runner is shared by the services: keyed locking, the transaction, the
// event log and failure metrics.
type runner struct {
	store store.Store
	locks *lock.KeyLock
	pub   Publisher
	clock Clock
}

func newRunner(st store.Store, locks *lock.KeyLock, pub Publisher, clock Clock) runner {
	if locks == nil {
		locks = lock.NewKeyLock()
	}
	if pub == nil {
		pub = nopPublisher{}
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return runner{store: st, locks: locks, pub: pub, clock: clock}
}

// op is the body of one operation. emit queues an event for the log.
type op func(tx store.Tx, now time.Time, emit func(*model.Event)) error

// run executes fn under the lock for key (if any) inside one transaction.
// Events are appended in the same transaction and dispatched after commit.
func (r runner) run(ctx context.Context, name, key string, fn op) error {
	if key != "" {
		if err := r.locks.LockContext(ctx, key, LockWait); err != nil {
			if errors.Is(err, lock.ErrLockTimeout) {
				err = guard.ErrRoomBusy
			} else {
				err = fmt.Errorf("failed to lock %s: %w", key, err)
			}
			metrics.OperationFailures.WithLabelValues(name, guard.CodeOf(err)).Inc()
			log.Debug().Err(err).Str("operation", name).Str("key", key).Msg("Operation not started")
			return err
		}
		defer r.locks.Unlock(key)
	}

	now := r.clock.Now()
	var pending []*model.Event
	err := r.store.WithTx(ctx, func(tx store.Tx) error {
		pending = pending[:0]
		emit := func(ev *model.Event) { pending = append(pending, ev) }
		if err := fn(tx, now, emit); err != nil {
			return err
		}
		for _, ev := range pending {
			if err := tx.Events().Append(ctx, ev); err != nil {
				return fmt.Errorf("failed to append event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		metrics.OperationFailures.WithLabelValues(name, guard.CodeOf(err)).Inc()
		log.Debug().Err(err).Str("operation", name).Str("key", key).Msg("Operation aborted")
		return err
	}

	r.pub.Dispatch(ctx, pending)
	return nil
}

func newEvent(kind string, roomKey model.Address, now time.Time, payload map[string]any) *model.Event {
	return events.New(kind, roomKey, payload, now)
}

func loadPlatform(ctx context.Context, tx store.Tx) (*model.PlatformConfig, error) {
	cfg, err := tx.Platform().Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load platform config: %w", err)
	}
	return cfg, nil
}

func loadRoomForUpdate(ctx context.Context, tx store.Tx, key model.Address) (*model.Room, error) {
	room, err := tx.Rooms().GetForUpdate(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrRoomNotFound) {
			return nil, guard.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

func isApproved(cfg *model.PlatformConfig, asset model.AssetType) bool {
	for _, a := range cfg.ApprovedAssets {
		if a == asset {
			return true
		}
	}
	return false
}
