package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fundraising-escrow/internal/model"
)

// EntryRepository handles participant entry persistence within one transaction.
type EntryRepository struct {
	tx pgx.Tx
}

// InsertIfAbsent stores the entry unless (room, participant) already exists.
func (r *EntryRepository) InsertIfAbsent(ctx context.Context, e *model.ParticipantEntry) (bool, error) {
	const query = `
		INSERT INTO participant_entries (room_key, participant, entry_paid, extras_paid, joined_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (room_key, participant) DO NOTHING
	`
	tag, err := r.tx.Exec(ctx, query,
		string(e.RoomKey),
		string(e.Participant),
		int64(e.EntryPaid),
		int64(e.ExtrasPaid),
		e.JoinedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Exists reports whether participant holds an entry for the room.
func (r *EntryRepository) Exists(ctx context.Context, roomKey, participant model.Address) (bool, error) {
	const query = `
		SELECT EXISTS (SELECT 1 FROM participant_entries WHERE room_key = $1 AND participant = $2)
	`
	var exists bool
	if err := r.tx.QueryRow(ctx, query, string(roomKey), string(participant)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check entry: %w", err)
	}
	return exists, nil
}

// List returns the entries of a room in join order.
func (r *EntryRepository) List(ctx context.Context, roomKey model.Address) ([]*model.ParticipantEntry, error) {
	const query = `
		SELECT room_key, participant, entry_paid, extras_paid, joined_at, created_at
		FROM participant_entries
		WHERE room_key = $1
		ORDER BY joined_at ASC, participant ASC
	`
	rows, err := r.tx.Query(ctx, query, string(roomKey))
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.ParticipantEntry
	for rows.Next() {
		var (
			e                 model.ParticipantEntry
			room, participant string
			entry, extras     int64
		)
		if err := rows.Scan(&room, &participant, &entry, &extras, &e.JoinedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.RoomKey = model.Address(room)
		e.Participant = model.Address(participant)
		e.EntryPaid = uint64(entry)
		e.ExtrasPaid = uint64(extras)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return entries, nil
}
