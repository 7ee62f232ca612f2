package destination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"aeroport/internal/payload"
)

const maxMessageLen = 4096

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends a chat notification per payload. With kinds set, payloads
// of other kinds are accepted and dropped.
type Telegram struct {
	name   string
	token  string
	chatID int64
	kinds  []string
	newAPI func(token string) (telegramAPI, error)
	api    telegramAPI
	log    *slog.Logger
}

func newTelegramFromSettings(name string, settings map[string]string, deps Deps) (Destination, error) {
	token := settings["token"]
	if token == "" {
		return nil, errors.New("token is required")
	}
	chatID, err := strconv.ParseInt(settings["chat_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse chat_id: %w", err)
	}
	var kinds []string
	if v := settings["kinds"]; v != "" {
		for _, k := range strings.Split(v, ",") {
			kinds = append(kinds, strings.TrimSpace(k))
		}
	}
	return &Telegram{
		name:   name,
		token:  token,
		chatID: chatID,
		kinds:  kinds,
		newAPI: func(token string) (telegramAPI, error) { return tgbotapi.NewBotAPI(token) },
		log:    deps.Log.With("destination", name),
	}, nil
}

func (t *Telegram) Name() string { return t.name }

func (t *Telegram) Prepare(context.Context) error {
	api, err := t.newAPI(t.token)
	if err != nil {
		return fmt.Errorf("create bot api: %w", err)
	}
	t.api = api
	return nil
}

func (t *Telegram) Release(context.Context) error {
	t.api = nil
	return nil
}

func (t *Telegram) ProcessPayload(_ context.Context, p *payload.Payload) error {
	if t.api == nil {
		return errors.New("telegram destination not prepared")
	}
	if len(t.kinds) > 0 && !slices.Contains(t.kinds, p.Kind()) {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatNotification(p))
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// FormatNotification renders a payload as a chat message: a header with the
// shop and title, then price and link when present, otherwise every field.
func FormatNotification(p *payload.Payload) string {
	var b strings.Builder
	title := p.String("title")
	if title == "" {
		fmt.Fprintf(&b, "[%s]\n", p.Kind())
		for _, k := range p.Keys() {
			v, _ := p.Lookup(k)
			fmt.Fprintf(&b, "%s: %v\n", k, v)
		}
		return truncate(strings.TrimRight(b.String(), "\n"))
	}

	if shop := p.String("shop_title"); shop != "" {
		fmt.Fprintf(&b, "[%s]\n\n", shop)
	}
	if brand := p.String("brand_title"); brand != "" {
		b.WriteString(brand)
		b.WriteString(" ")
	}
	b.WriteString(title)
	if price, ok := p.Float("price"); ok {
		fmt.Fprintf(&b, "\n\n%.2f", price)
		if old, ok := p.Float("oldprice"); ok && old > 0 {
			fmt.Fprintf(&b, " (was %.2f)", old)
		}
	}
	if url := p.String("url"); url != "" {
		b.WriteString("\n\n")
		b.WriteString(url)
	}
	return truncate(b.String())
}

func truncate(s string) string {
	if len(s) <= maxMessageLen {
		return s
	}
	return s[:maxMessageLen-3] + "..."
}
