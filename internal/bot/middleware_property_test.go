package bot

import (
	"testing"

	tele "gopkg.in/telebot.v3"
	"pgregory.net/rapid"

	"fundraising-escrow/internal/config"
)

// fakeContext overrides the parts of tele.Context the middleware reads.
type fakeContext struct {
	tele.Context
	chat   *tele.Chat
	sender *tele.User
}

func (c *fakeContext) Chat() *tele.Chat   { return c.chat }
func (c *fakeContext) Sender() *tele.User { return c.sender }

// runWhitelist reports whether the handler behind WhitelistMiddleware ran.
func runWhitelist(cfg *config.Config, chat *tele.Chat, sender *tele.User) bool {
	called := false
	h := WhitelistMiddleware(cfg)(func(tele.Context) error {
		called = true
		return nil
	})
	_ = h(&fakeContext{chat: chat, sender: sender})
	return called
}

func drawChats(t *rapid.T) []int64 {
	n := rapid.IntRange(1, 10).Draw(t, "numChats")
	chats := make([]int64, n)
	for i := range chats {
		// Group chat IDs are negative
		chats[i] = -rapid.Int64Range(1, 1000000000).Draw(t, "chatID")
	}
	return chats
}

// Property 1: a group update is handled iff its chat is on the list.
func TestWhitelistEnforcementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := drawChats(t)
		cfg := &config.Config{Bot: config.BotConfig{Chats: chats}}

		testChatID := -rapid.Int64Range(1, 1000000000).Draw(t, "testChatID")
		expected := false
		for _, id := range chats {
			if id == testChatID {
				expected = true
				break
			}
		}

		if got := cfg.IsChatAllowed(testChatID); got != expected {
			t.Fatalf("IsChatAllowed(%d) = %v with chats %v", testChatID, got, chats)
		}
		user := &tele.User{ID: rapid.Int64Range(1, 1000000000).Draw(t, "userID")}
		if got := runWhitelist(cfg, &tele.Chat{ID: testChatID, Type: tele.ChatGroup}, user); got != expected {
			t.Fatalf("middleware handled=%v for chat %d with chats %v", got, testChatID, chats)
		}
	})
}

// Property 2: every listed chat is allowed.
func TestWhitelistEnforcementWithKnownChatProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := drawChats(t)
		cfg := &config.Config{Bot: config.BotConfig{Chats: chats}}

		known := chats[rapid.IntRange(0, len(chats)-1).Draw(t, "chatIndex")]
		if !cfg.IsChatAllowed(known) {
			t.Fatalf("listed chat %d should be allowed, chats=%v", known, chats)
		}
	})
}

// Property 3: an empty list allows every chat.
func TestEmptyWhitelistAllowsAllChatsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cfg := &config.Config{}
		chatID := -rapid.Int64Range(1, 1000000000).Draw(t, "chatID")
		if !cfg.IsChatAllowed(chatID) {
			t.Fatalf("with an empty list chat %d should be allowed", chatID)
		}
	})
}

// Property 4: a user seen in a listed group may use private chat afterwards.
func TestPrivateChatAfterGroupProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		chats := drawChats(t)
		cfg := &config.Config{Bot: config.BotConfig{Chats: chats}}
		// Offset keeps these users apart from other properties sharing the cache.
		user := &tele.User{ID: 2000000000 + rapid.Int64Range(1, 1000000000).Draw(t, "userID")}
		private := &tele.Chat{ID: user.ID, Type: tele.ChatPrivate}

		if !runWhitelist(cfg, &tele.Chat{ID: chats[0], Type: tele.ChatSuperGroup}, user) {
			t.Fatalf("listed group %d should be handled", chats[0])
		}
		if !IsPrivateUserAllowed(user.ID) {
			t.Fatalf("user %d should be cached after a listed group", user.ID)
		}
		if !runWhitelist(cfg, private, user) {
			t.Fatalf("private chat of cached user %d should be handled", user.ID)
		}
	})
}

func TestWhitelistMiddleware_UnknownPrivateUser(t *testing.T) {
	cfg := &config.Config{Bot: config.BotConfig{Chats: []int64{-1}}}
	user := &tele.User{ID: 42}
	if runWhitelist(cfg, &tele.Chat{ID: 42, Type: tele.ChatPrivate}, user) {
		t.Fatal("unknown private user should be ignored")
	}
	if runWhitelist(cfg, nil, user) {
		t.Fatal("update without chat should be ignored")
	}
}
