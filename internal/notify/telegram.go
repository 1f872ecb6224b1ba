package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/Karthik-guddanti/digantara/pkg/logx"
)

type TelegramConfig struct {
	Token  string
	ChatID int64
}

// Telegram sends messages to a fixed chat. The bot is used send-only;
// no poller is started.
type Telegram struct {
	bot  *tele.Bot
	chat *tele.Chat
	log  logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is required")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:  b,
		chat: &tele.Chat{ID: cfg.ChatID},
		log:  log,
	}, nil
}

func (t *Telegram) Send(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return nil
	}

	// telebot has no context-aware send; bound it ourselves so a hung
	// delivery cannot hold a scheduler worker past the run timeout.
	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := t.bot.Send(t.chat, message, &tele.SendOptions{DisableWebPagePreview: true})
		done <- result{err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			t.log.Warn("telegram send failed", logx.Err(r.err))
		}
		return r.err
	case <-time.After(15 * time.Second):
		return errors.New("telegram send timed out")
	}
}
