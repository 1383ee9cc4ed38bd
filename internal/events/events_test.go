package events

import (
	"context"
	"errors"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundraising-escrow/internal/model"
)

type recordingSink struct {
	name string
	got  []*model.Event
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, ev *model.Event) error {
	s.got = append(s.got, ev)
	return s.err
}

func TestNew(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	a := New(model.EventPlayerJoined, "room", nil, at)
	b := New(model.EventPlayerJoined, "room", nil, at)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotNil(t, a.Payload)
	assert.Equal(t, time.UTC, a.CreatedAt.Location())
}

func TestDispatcher_ContinuesAfterSinkFailure(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}
	d := NewDispatcher(failing, nil, ok)

	evs := []*model.Event{
		New(model.EventRoomCreated, "r", nil, time.Now()),
		New(model.EventPlayerJoined, "r", nil, time.Now()),
	}
	d.Dispatch(context.Background(), evs)

	assert.Len(t, failing.got, 2)
	require.Len(t, ok.got, 2)
	assert.Equal(t, model.EventRoomCreated, ok.got[0].Kind)
}

type fakeStreamer struct {
	args []*redis.XAddArgs
}

func (f *fakeStreamer) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("1-0")
	return cmd
}

func TestRedisSink_Publish(t *testing.T) {
	f := &fakeStreamer{}
	sink := NewRedisSink(f, "escrow:events", 1000)

	ev := New(model.EventRoomEnded, "room", map[string]any{"charity": 570}, time.Unix(100, 0))
	require.NoError(t, sink.Publish(context.Background(), ev))

	require.Len(t, f.args, 1)
	a := f.args[0]
	assert.Equal(t, "escrow:events", a.Stream)
	assert.Equal(t, int64(1000), a.MaxLen)
	assert.True(t, a.Approx)
	values := a.Values.(map[string]any)
	assert.Equal(t, model.EventRoomEnded, values["kind"])
	assert.JSONEq(t, `{"charity":570}`, values["payload"].(string))
}
