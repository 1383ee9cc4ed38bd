package bot

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"fundraising-escrow/internal/model"
)

// Sender is the part of tele.Bot the notifier needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier posts events to Telegram chats. It implements events.Sink.
type Notifier struct {
	sender Sender
	chats  []int64
}

// NewNotifier creates a notifier for chats.
func NewNotifier(sender Sender, chats []int64) *Notifier {
	return &Notifier{sender: sender, chats: chats}
}

// Name implements events.Sink.
func (n *Notifier) Name() string { return "telegram" }

// Publish sends the formatted event to every chat. The first failure is
// returned after all chats were tried.
func (n *Notifier) Publish(_ context.Context, ev *model.Event) error {
	text := FormatEvent(ev)
	if text == "" {
		return nil
	}
	var firstErr error
	for _, id := range n.chats {
		if _, err := n.sender.Send(tele.ChatID(id), text); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to notify chat %d: %w", id, err)
		}
	}
	return firstErr
}
