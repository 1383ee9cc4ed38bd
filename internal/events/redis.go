package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"fundraising-escrow/internal/model"
)

// Streamer is the part of the redis client RedisSink needs.
type Streamer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink appends events to a Redis stream for external observers.
type RedisSink struct {
	client Streamer
	stream string
	maxLen int64
}

// NewRedisSink creates a sink writing to stream, trimmed to roughly maxLen entries.
func NewRedisSink(client Streamer, stream string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// Connect opens a redis client and pings it. Returns nil when addr is empty
// or the server is unreachable; callers then run without the stream.
func Connect(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("Redis unavailable, continuing without it")
		_ = client.Close()
		return nil
	}
	log.Info().Str("addr", addr).Msg("Connected to Redis")
	return client
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Publish implements Sink.
func (s *RedisSink) Publish(ctx context.Context, ev *model.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":         ev.ID,
			"kind":       ev.Kind,
			"room_key":   string(ev.RoomKey),
			"payload":    string(payload),
			"created_at": ev.CreatedAt.Unix(),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", s.stream, err)
	}
	return nil
}
