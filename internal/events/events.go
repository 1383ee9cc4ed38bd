// Package events builds notification records and fans them out to sinks
// once the operation that produced them has committed.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/model"
)

// Sink receives committed events.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev *model.Event) error
}

// New builds an event with a fresh id.
func New(kind string, roomKey model.Address, payload map[string]any, at time.Time) *model.Event {
	if payload == nil {
		payload = map[string]any{}
	}
	return &model.Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		RoomKey:   roomKey,
		Payload:   payload,
		CreatedAt: at.UTC(),
	}
}

// Dispatcher publishes events to every registered sink.
type Dispatcher struct {
	sinks []Sink
}

// NewDispatcher creates a dispatcher over sinks. Nil sinks are ignored.
func NewDispatcher(sinks ...Sink) *Dispatcher {
	d := &Dispatcher{}
	for _, s := range sinks {
		if s != nil {
			d.sinks = append(d.sinks, s)
		}
	}
	return d
}

// Add registers another sink.
func (d *Dispatcher) Add(s Sink) {
	if s != nil {
		d.sinks = append(d.sinks, s)
	}
}

// Dispatch publishes evs in order. Sink failures are logged and never
// returned: the operation has already committed.
func (d *Dispatcher) Dispatch(ctx context.Context, evs []*model.Event) {
	for _, ev := range evs {
		for _, s := range d.sinks {
			if err := s.Publish(ctx, ev); err != nil {
				log.Error().
					Err(err).
					Str("sink", s.Name()).
					Str("event_id", ev.ID).
					Str("kind", ev.Kind).
					Msg("Failed to publish event")
			}
		}
	}
}

// LogSink writes events to the application log.
type LogSink struct{}

// Name implements Sink.
func (LogSink) Name() string { return "log" }

// Publish implements Sink.
func (LogSink) Publish(_ context.Context, ev *model.Event) error {
	log.Info().
		Str("event_id", ev.ID).
		Str("kind", ev.Kind).
		Str("room_key", string(ev.RoomKey)).
		Interface("payload", ev.Payload).
		Msg("Event")
	return nil
}
