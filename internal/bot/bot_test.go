package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v3"

	"fundraising-escrow/internal/model"
)

type sent struct {
	to   string
	what interface{}
}

type fakeSender struct {
	sent []sent
	fail map[string]bool
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	if f.fail[to.Recipient()] {
		return nil, errors.New("chat not found")
	}
	f.sent = append(f.sent, sent{to: to.Recipient(), what: what})
	return &tele.Message{}, nil
}

func TestFormatBps(t *testing.T) {
	tests := []struct {
		bps  uint16
		want string
	}{
		{0, "0%"},
		{250, "2.5%"},
		{2000, "20%"},
		{10000, "100%"},
		{1, "0.01%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatBps(tt.bps))
	}
}

func TestFormatShare(t *testing.T) {
	assert.Equal(t, "0%", FormatShare(5, 0))
	assert.Equal(t, "57%", FormatShare(570, 1000))
	assert.Equal(t, "33.33%", FormatShare(1, 3))
	assert.Equal(t, "100%", FormatShare(^uint64(0), ^uint64(0)))
}

func TestFormatRoom(t *testing.T) {
	pool := &model.Room{
		RoomID: "quiz", Host: "host", FeeAsset: "USDC", Status: model.StatusActive,
		EntryFee: 100, MaxPlayers: 10, PlayerCount: 2, TotalEntry: 200, TotalExtras: 5,
		HostFeeBps: 500, CharityBps: 4000, PrizePoolBps: 3500,
		PrizeMode: model.PrizeModePoolSplit, Distribution: model.Weights{60, 40},
	}
	text := FormatRoom(pool)
	assert.Contains(t, text, "Room quiz by host")
	assert.Contains(t, text, "Players: 2/10")
	assert.Contains(t, text, "prize pool: 35% (60%/40%)")

	asset := &model.Room{
		RoomID: "raffle", Host: "host", FeeAsset: "USDC", Status: model.StatusPartiallyFunded,
		PrizeMode: model.PrizeModeAssetBased, JoiningClosed: true,
		PrizeSlots: []model.PrizeSlot{{AssetType: "GOLD", Amount: 5, Deposited: true}, {AssetType: "SILVER", Amount: 2}},
	}
	text = FormatRoom(asset)
	assert.Contains(t, text, "Prize 1: 5 GOLD (deposited)")
	assert.Contains(t, text, "Prize 2: 2 SILVER (pending)")
	assert.Contains(t, text, "Joining closed")
}

func TestFormatEvent(t *testing.T) {
	ended := &model.Event{Kind: model.EventRoomEnded, Payload: map[string]any{
		"charity_amount": uint64(570), "entry_fees_total": uint64(1000), "extras_total": uint64(0),
		"winners": []string{"p0", "p1"},
	}}
	assert.Equal(t, "Room ended. Charity receives 570 (57% of everything collected), winners: [p0 p1]", FormatEvent(ended))

	paused := &model.Event{Kind: model.EventEmergencyPauseToggled, Payload: map[string]any{"paused": true}}
	assert.Equal(t, "Platform paused", FormatEvent(paused))

	assert.Empty(t, FormatEvent(&model.Event{Kind: model.EventAssetApproved, Payload: map[string]any{}}))
}

func TestFormatPolicy(t *testing.T) {
	text := FormatPolicy(&model.PlatformConfig{
		Policy:         model.FeePolicy{PlatformFeeBps: 2000, MaxHostFeeBps: 500, MaxPrizePoolBps: 3500, MinCharityBps: 4000},
		ApprovedAssets: []model.AssetType{"USDC"},
		Paused:         true,
	})
	assert.Contains(t, text, "Platform fee: 20%")
	assert.Contains(t, text, "Min charity: 40%")
	assert.Contains(t, text, "Approved assets: 1")
	assert.Contains(t, text, "PAUSED")
}

func TestNotifier_Publish(t *testing.T) {
	sender := &fakeSender{fail: map[string]bool{"-2": true}}
	n := NewNotifier(sender, []int64{-1, -2, -3})
	assert.Equal(t, "telegram", n.Name())

	ev := &model.Event{Kind: model.EventPlayerJoined, CreatedAt: time.Now(), Payload: map[string]any{
		"player": "alice", "player_count": uint32(3),
	}}
	err := n.Publish(context.Background(), ev)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-2")

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "-1", sender.sent[0].to)
	assert.Equal(t, "-3", sender.sent[1].to)
	assert.Equal(t, "alice joined (3 players)", sender.sent[0].what)
}

func TestNotifier_SkipsSilentEvents(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, []int64{-1})
	require.NoError(t, n.Publish(context.Background(), &model.Event{Kind: model.EventAssetRemoved, Payload: map[string]any{}}))
	assert.Empty(t, sender.sent)
}
