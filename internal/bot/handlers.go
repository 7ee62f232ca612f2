package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"aeroport/internal/airline"
	"aeroport/internal/storage"
)

const (
	defaultFlightsLimit = 10
	maxFlightsLimit     = 50
	defaultStuckAfter   = 6 * time.Hour
)

func (b *Bot) handleStart(chatID int64) {
	b.reply(chatID, `Aeroport control tower.

Watch flights and launch origins from chat.

Quick start:
1. /airlines to see what can fly
2. /process <airline> <origin> to launch a run
3. /flights to follow it

Use /help for the full command reference.`)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, `Airlines:
/airlines to list airlines and origins
/origins <airline> to show origins with destination and schedule

Flights:
/flights [n] to show the last n flights (default 10)
/flight <uuid> to show one flight
/stuck [duration] to show flights in the air longer than duration (default 6h)
/process <airline> <origin> [destination] to launch a run now`)
}

func (b *Bot) handleAirlines(chatID int64) {
	b.reply(chatID, FormatAirlines(b.deps.Registry, b.deps.Settings))
}

func (b *Bot) handleOrigins(chatID int64, args string) {
	if args == "" {
		b.reply(chatID, "Usage: /origins <airline>")
		return
	}

	a, ok := b.deps.Registry.Get(args)
	if !ok {
		b.reply(chatID, fmt.Sprintf("Airline %q not found.", args))
		return
	}

	msg := tgbotapi.NewMessage(chatID, FormatOrigins(a, b.deps.Settings))
	as := b.deps.Settings.Airlines[a.Name]
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, o := range a.Origins() {
		if !as.Enabled || !as.Origins[o.Name].IsEnabled() {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Run "+o.Name, callbackData(cmdProcess, a.Name+"/"+o.Name)),
		))
	}
	if len(rows) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	b.send(msg)
}

func (b *Bot) handleFlights(ctx context.Context, chatID int64, args string) {
	limit, err := ParseLimitArg(args, defaultFlightsLimit, maxFlightsLimit)
	if err != nil {
		b.reply(chatID, "Usage: /flights [n]")
		return
	}

	flights, err := b.deps.Flights.ListFlights(ctx, limit)
	if err != nil {
		b.log.Error("list flights", "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatFlightList("Recent flights:", flights, b.now()))
}

func (b *Bot) handleFlight(ctx context.Context, chatID int64, args string) {
	uuid, err := ParseFlightArg(args)
	if err != nil {
		b.reply(chatID, "Usage: /flight <uuid>")
		return
	}

	f, err := b.deps.Flights.GetFlight(ctx, uuid)
	if errors.Is(err, storage.ErrFlightNotFound) {
		b.reply(chatID, fmt.Sprintf("Flight %s not found.", uuid))
		return
	}
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	b.reply(chatID, FormatFlight(f, b.now()))
}

func (b *Bot) handleStuck(ctx context.Context, chatID int64, args string) {
	after, err := ParseDurationArg(args, defaultStuckAfter)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	now := b.now()
	flights, err := b.deps.Flights.ListStuckFlights(ctx, now.Add(-after))
	if err != nil {
		b.log.Error("list stuck flights", "error", err)
		b.reply(chatID, fmt.Sprintf("Error: %v", err))
		return
	}
	if len(flights) == 0 {
		b.reply(chatID, fmt.Sprintf("No flights in the air longer than %s.", after))
		return
	}
	b.reply(chatID, FormatFlightList(fmt.Sprintf("In the air longer than %s:", after), flights, now))
}

func (b *Bot) handleProcess(ctx context.Context, chatID int64, args string) {
	p, err := ParseProcessArgs(args)
	if err != nil {
		b.reply(chatID, err.Error())
		return
	}

	uuid, err := b.deps.Launcher.Launch(ctx, p.Airline, p.Origin, p.Destination)
	if err != nil {
		if !errors.Is(err, airline.ErrProcessing) {
			b.log.Error("launch", "airline", p.Airline, "origin", p.Origin, "error", err)
		}
		b.reply(chatID, fmt.Sprintf("Cannot launch %s/%s: %v", p.Airline, p.Origin, err))
		return
	}

	b.log.Info("flight launched", "airline", p.Airline, "origin", p.Origin, "flight", uuid, "chat_id", chatID)
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("Flight %s took off: %s/%s", uuid, p.Airline, p.Origin))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Status", callbackData(cmdFlight, uuid)),
		),
	)
	b.send(msg)
}
