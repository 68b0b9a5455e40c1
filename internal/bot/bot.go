// Package bot runs the interactive Telegram command loop: manual sync and
// change checks on demand, on top of whatever periodic monitoring the
// caller schedules.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	appLog "orarsync/internal/log"
	"orarsync/internal/model"
	"orarsync/internal/monitor"
	"orarsync/internal/notify"
)

// SyncAllFunc performs a full fetch-and-reconcile cycle for the current
// monitoring window.
type SyncAllFunc func(ctx context.Context) (*model.ReconcileReport, error)

// Bot wires Telegram commands to the monitor and the sync pipeline.
type Bot struct {
	tg      *notify.Telegram
	monitor *monitor.Monitor
	sync    SyncAllFunc
	group   string
}

func New(tg *notify.Telegram, mon *monitor.Monitor, sync SyncAllFunc, group string) *Bot {
	return &Bot{tg: tg, monitor: mon, sync: sync, group: group}
}

// Run polls for commands until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	b.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.tg.API().GetUpdatesChan(u)

	appLog.Info("bot command loop started", "group", b.group)
	for {
		select {
		case <-ctx.Done():
			b.tg.API().StopReceivingUpdates()
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handle(ctx, update.Message)
		}
	}
}

// registerCommands publishes the command menu shown by Telegram clients.
func (b *Bot) registerCommands() {
	cmds := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Start the bot"},
		tgbotapi.BotCommand{Command: "status", Description: "Show group and monitored weeks"},
		tgbotapi.BotCommand{Command: "sync", Description: "Sync schedule to calendar now"},
		tgbotapi.BotCommand{Command: "check", Description: "Check for schedule changes now"},
		tgbotapi.BotCommand{Command: "help", Description: "Show available commands"},
	)
	if _, err := b.tg.API().Request(cmds); err != nil {
		appLog.Error("failed to register command menu", err)
	}
}

func (b *Bot) handle(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	appLog.Debug("bot command received", "command", msg.Command(), "chat", chatID)

	switch msg.Command() {
	case "start":
		b.reply(chatID, "Hello! I monitor the "+b.group+" schedule.\n\n"+
			"I watch for timetable changes, keep your calendar in sync, and "+
			"notify you when something moves.\n\nUse /help for commands.")

	case "help":
		b.reply(chatID, strings.Join([]string{
			"Available commands:",
			"/status - show group and monitored weeks",
			"/check - check for schedule changes now",
			"/sync - sync schedule to calendar now",
			"/help - this message",
		}, "\n"))

	case "status":
		weeks := b.monitor.Weeks(time.Now())
		b.reply(chatID, fmt.Sprintf("Group: %s\nMonitored weeks: %s",
			b.group, joinWeeks(weeks)))

	case "check":
		b.reply(chatID, "Checking for schedule changes...")
		diff, err := b.monitor.Check(ctx)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Check failed: %v", err))
			return
		}
		b.reply(chatID, notify.FormatDiff(diff))

	case "sync":
		b.reply(chatID, "Syncing schedule to calendar...")
		report, err := b.sync(ctx)
		if err != nil {
			b.reply(chatID, fmt.Sprintf("Sync failed: %v", err))
			return
		}
		b.reply(chatID, notify.FormatReport(report))

	default:
		b.reply(chatID, "Unknown command. Use /help.")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.tg.SendTo(chatID, text); err != nil {
		appLog.Error("bot reply failed", err, "chat", chatID)
	}
}

func joinWeeks(weeks []int) string {
	parts := make([]string, len(weeks))
	for i, w := range weeks {
		parts[i] = fmt.Sprint(w)
	}
	return strings.Join(parts, ", ")
}
