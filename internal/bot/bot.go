// Package bot connects the escrow engine to Telegram: it posts committed
// events to the configured chats and answers read-only room queries.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"fundraising-escrow/internal/config"
	"fundraising-escrow/internal/guard"
	"fundraising-escrow/internal/model"
)

// RoomReader looks rooms up by host and identifier.
type RoomReader interface {
	Get(ctx context.Context, host model.Address, roomID string) (*model.Room, error)
}

// PlatformReader reads the platform record.
type PlatformReader interface {
	Get(ctx context.Context) (*model.PlatformConfig, error)
}

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot      *tele.Bot
	cfg      *config.Config
	rooms    RoomReader
	platform PlatformReader
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config   *config.Config
	Rooms    RoomReader
	Platform PlatformReader
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:      teleBot,
		cfg:      deps.Config,
		rooms:    deps.Rooms,
		platform: deps.Platform,
	}

	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg))
	b.bot.Use(LoggingMiddleware())

	b.bot.Handle("/room", b.handleRoom)
	b.bot.Handle("/policy", b.handlePolicy)

	return b, nil
}

// Notifier returns an event sink posting to the configured chats.
func (b *Bot) Notifier() *Notifier {
	return NewNotifier(b.bot, b.cfg.Bot.Chats)
}

// handleRoom answers /room <host> <room_id>.
func (b *Bot) handleRoom(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Reply("Usage: /room <host> <room_id>")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	room, err := b.rooms.Get(ctx, model.Address(args[0]), args[1])
	if err != nil {
		if errors.Is(err, guard.ErrRoomNotFound) {
			return c.Reply("Room not found")
		}
		log.Error().Err(err).Str("host", args[0]).Str("room_id", args[1]).Msg("Failed to load room")
		return c.Reply("Failed to load room, please try again later")
	}
	return c.Reply(FormatRoom(room))
}

// handlePolicy answers /policy with the current fee policy.
func (b *Bot) handlePolicy(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := b.platform.Get(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load platform config")
		return c.Reply("Failed to load policy, please try again later")
	}
	return c.Reply(FormatPolicy(cfg))
}

// Start starts the bot polling. It blocks until Stop.
func (b *Bot) Start() {
	log.Info().Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
