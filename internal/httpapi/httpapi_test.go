package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundraising-escrow/internal/config"
	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/model"
	"fundraising-escrow/internal/service"
	"fundraising-escrow/internal/store/memory"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, key string, _ time.Duration) *redis.BoolCmd {
	cmd := redis.NewBoolCmd(ctx)
	cmd.SetVal(true)
	return cmd
}

func newTestServer(t *testing.T, limiter Counter, joinLimit int) *Server {
	t.Helper()
	st := memory.New()
	svc := Services{
		Rooms:    service.NewRoomService(st, nil, nil, nil, nil),
		Platform: service.NewPlatformService(st, nil, nil, nil),
		Ledger:   service.NewLedgerService(st, nil, nil),
	}
	_, err := svc.Platform.Bootstrap(context.Background(), &model.PlatformConfig{
		Admin:          "admin",
		PlatformWallet: "platform",
		CharityWallet:  "charity",
		Policy:         model.FeePolicy{PlatformFeeBps: 2000, MaxHostFeeBps: 500, MaxPrizePoolBps: 3500, MinCharityBps: 4000},
		ApprovedAssets: []model.AssetType{"USDC"},
	})
	require.NoError(t, err)

	cfg := config.HTTPConfig{JWTSecret: string(testSecret), JoinRateLimit: joinLimit, JoinRateWindow: time.Minute}
	return New(cfg, svc, limiter)
}

func do(t *testing.T, s *Server, method, path string, caller model.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := IssueToken(testSecret, caller, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestRoomFlow(t *testing.T) {
	s := newTestServer(t, nil, 0)

	w := do(t, s, http.MethodPost, "/v1/rooms/pool", "host", map[string]any{
		"room_id":            "quiz",
		"fee_asset":          "USDC",
		"entry_fee":          100,
		"max_players":        10,
		"host_fee_bps":       300,
		"prize_pool_bps":     2000,
		"prize_distribution": []int{60, 40},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var room model.Room
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &room))
	assert.Equal(t, model.Weights{60, 40}, room.Distribution)
	assert.Equal(t, model.StatusActive, room.Status)

	for _, p := range []model.Address{"alice", "bob"} {
		w = do(t, s, http.MethodPost, "/v1/admin/mint", "admin", map[string]any{"owner": p, "asset": "USDC", "amount": 100})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		w = do(t, s, http.MethodPost, "/v1/rooms/host/quiz/join", p, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = do(t, s, http.MethodPost, "/v1/rooms/host/quiz/join", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "PlayerAlreadyJoined", errorCode(t, w))

	w = do(t, s, http.MethodPost, "/v1/rooms/host/quiz/winners", "host", map[string]any{"winners": []string{"alice", "bob"}})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, s, http.MethodPost, "/v1/rooms/host/quiz/end", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, s, http.MethodPost, "/v1/rooms/host/quiz/end", "host", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result model.Settlement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, uint64(200), result.EntryTotal)
	assert.Equal(t, uint64(40), result.PlatformFee)
	assert.Equal(t, uint64(40), result.PrizeShare)

	w = do(t, s, http.MethodGet, "/v1/rooms/host/quiz/events?limit=1", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.EventRoomEnded)
}

func TestListRoomsByHost(t *testing.T) {
	s := newTestServer(t, nil, 0)

	for _, id := range []string{"quiz-b", "quiz-a"} {
		w := do(t, s, http.MethodPost, "/v1/rooms/pool", "host", map[string]any{
			"room_id":            id,
			"fee_asset":          "USDC",
			"entry_fee":          100,
			"max_players":        10,
			"prize_pool_bps":     0,
			"prize_distribution": []int{100},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(t, s, http.MethodGet, "/v1/rooms?host=host", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Rooms []model.Room `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Rooms, 2)
	assert.ElementsMatch(t, []string{"quiz-a", "quiz-b"}, []string{body.Rooms[0].RoomID, body.Rooms[1].RoomID})

	w = do(t, s, http.MethodGet, "/v1/rooms?host=nobody", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Rooms)

	w = do(t, s, http.MethodGet, "/v1/rooms", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidAddress", errorCode(t, w))
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, nil, 0)

	w := do(t, s, http.MethodGet, "/v1/platform", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/platform", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := IssueToken(testSecret, "alice", -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ParseToken([]byte("other"), mustToken(t, "alice"))
	assert.ErrorIs(t, err, ErrInvalidToken)

	w = do(t, s, http.MethodGet, "/v1/platform", "alice", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func mustToken(t *testing.T, sub model.Address) string {
	t.Helper()
	token, err := IssueToken(testSecret, sub, time.Hour)
	require.NoError(t, err)
	return token
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, nil, 0)

	w := do(t, s, http.MethodGet, "/v1/rooms/host/missing", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RoomNotFound", errorCode(t, w))

	w = do(t, s, http.MethodPost, "/v1/rooms/pool", "host", map[string]any{
		"room_id": "quiz", "fee_asset": "USDC", "entry_fee": 0, "max_players": 10, "prize_distribution": []int{100},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidEntryFee", errorCode(t, w))

	w = do(t, s, http.MethodPost, "/v1/admin/pause", "alice", map[string]any{"paused": true})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, s, http.MethodPost, "/v1/admin/pause", "admin", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tests := []struct {
		err  error
		want int
	}{
		{guard.ErrUnauthorized, http.StatusForbidden},
		{guard.ErrRoomAlreadyEnded, http.StatusConflict},
		{guard.ErrInvalidRoomID, http.StatusBadRequest},
		{guard.ErrArithmeticOverflow, http.StatusUnprocessableEntity},
		{guard.ErrInvalidTokenOwner, http.StatusUnprocessableEntity},
		{guard.ErrAccountNotFound, http.StatusNotFound},
		{guard.ErrInsufficientFunds, http.StatusPaymentRequired},
		{guard.ErrRoomBusy, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestJoinRateLimit(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}}
	s := newTestServer(t, counter, 1)

	w := do(t, s, http.MethodPost, "/v1/rooms/host/quiz/join", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "first request reaches the handler")

	w = do(t, s, http.MethodPost, "/v1/rooms/host/quiz/join", "alice", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = do(t, s, http.MethodPost, "/v1/rooms/host/quiz/join", "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "limits are per caller")
}

func TestJoinRateLimit_FailOpen(t *testing.T) {
	counter := &fakeCounter{counts: map[string]int64{}, err: errors.New("connection refused")}
	s := newTestServer(t, counter, 1)

	for i := 0; i < 3; i++ {
		w := do(t, s, http.MethodPost, "/v1/rooms/host/quiz/join", "alice", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "redis-error", w.Header().Get("X-RateLimit-Error"))
	}
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func TestHealthz_StoreDown(t *testing.T) {
	s := New(config.HTTPConfig{JWTSecret: string(testSecret)}, Services{
		Health: healthFunc(func(context.Context) error { return errors.New("pool closed") }),
	}, nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
