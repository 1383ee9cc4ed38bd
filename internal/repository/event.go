package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fundraising-escrow/internal/model"
)

// EventRepository appends to and reads the room event log.
type EventRepository struct {
	tx pgx.Tx
}

// Append records an event. Events are never updated.
func (r *EventRepository) Append(ctx context.Context, ev *model.Event) error {
	const query = `
		INSERT INTO room_events (id, kind, room_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}
	if _, err := r.tx.Exec(ctx, query, ev.ID, ev.Kind, string(ev.RoomKey), payload, ev.CreatedAt); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListByRoom returns the most recent events of a room, newest first.
func (r *EventRepository) ListByRoom(ctx context.Context, roomKey model.Address, limit int) ([]*model.Event, error) {
	const query = `
		SELECT id::text, kind, room_key, payload, created_at
		FROM room_events
		WHERE room_key = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.tx.Query(ctx, query, string(roomKey), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		var (
			ev      model.Event
			key     string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Kind, &key, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.RoomKey = model.Address(key)
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
