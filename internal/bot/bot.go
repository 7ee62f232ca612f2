// Package bot is the Telegram control tower: it lists airlines and flights
// and launches origin runs on request.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"aeroport/internal/airline"
	"aeroport/internal/config"
	"aeroport/internal/model"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// FlightStore is the read side of flight storage.
type FlightStore interface {
	GetFlight(ctx context.Context, uuid string) (*model.Flight, error)
	ListFlights(ctx context.Context, limit int) ([]model.Flight, error)
	ListStuckFlights(ctx context.Context, cutoff time.Time) ([]model.Flight, error)
}

type Launcher interface {
	Launch(ctx context.Context, airline, origin, destination string) (string, error)
}

// Deps are the services the bot reports on and drives.
type Deps struct {
	Flights  FlightStore
	Launcher Launcher
	Registry *airline.Registry
	Settings *config.Settings
}

// Bot answers admin commands over Telegram long polling.
type Bot struct {
	api  telegramAPI
	deps Deps
	cfg  *config.Config
	log  *slog.Logger
	now  func() time.Time
}

// New creates a Bot with the given Telegram token.
func New(token string, deps Deps, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:  api,
		deps: deps,
		cfg:  cfg,
		log:  log.With("component", "bot"),
		now:  time.Now,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
// Runs launched from chat execute under ctx.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if !b.cfg.IsUserAllowed(update.CallbackQuery.From.ID) {
			return
		}
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		if !b.cfg.IsUserAllowed(update.Message.From.ID) {
			b.reply(update.Message.Chat.ID, "Access denied.")
			return
		}
		b.handleCommand(ctx, update.Message)
	}
}

// SendMessage sends a text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(msg tgbotapi.MessageConfig) {
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", msg.ChatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "airlines":
		b.handleAirlines(chatID)
	case "origins":
		b.handleOrigins(chatID, args)
	case "flights":
		b.handleFlights(ctx, chatID, args)
	case cmdFlight:
		b.handleFlight(ctx, chatID, args)
	case "stuck":
		b.handleStuck(ctx, chatID, args)
	case cmdProcess:
		b.handleProcess(ctx, chatID, args)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
