// Package logger provides structured logging for the bot.
// It builds a slog logger (console or JSON, optionally routing errors to Telegram)
// and a go-telegram/bot middleware that logs every processed update.
package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
	slogtelegram "github.com/samber/slog-telegram/v2"

	"github.com/edgard/autoreply/internal/config"
)

// AlertKey marks a record for delivery to the Telegram alert chat regardless of level.
const AlertKey = "telegram"

// ParseLevel maps a config level name to a slog level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates the root logger from cfg and installs it as the slog default.
func New(cfg config.LoggerConfig) *slog.Logger {
	level := ParseLevel(cfg.Level)

	var base slog.Handler
	if cfg.JSON {
		base = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		base = console.NewHandler(os.Stdout, &console.HandlerOptions{Level: level})
	}

	router := slogmulti.Router().Add(base)

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
		router = router.Add(
			slogtelegram.Option{
				Level:    slog.LevelDebug,
				Token:    cfg.Telegram.Token,
				Username: cfg.Telegram.ChatID,
			}.NewTelegramHandler(),
			isAlert,
		)
	}

	logger := slog.New(router.Handler())
	slog.SetDefault(logger)
	return logger
}

// isAlert selects error records and records carrying the AlertKey attribute.
func isAlert(_ context.Context, r slog.Record) bool {
	if r.Level >= slog.LevelError {
		return true
	}

	found := false
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key == AlertKey {
			found = true
			return false
		}
		return true
	})
	return found
}

// Middleware creates a logging middleware for the Telegram bot.
// It logs information about incoming updates and how long they took to handle.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()
			logEntry := log.With("update_id", update.ID)

			var updateType string
			switch {
			case update.Message != nil:
				updateType = "message"
				logEntry = logEntry.With(
					"message_id", update.Message.ID,
					"chat_id", update.Message.Chat.ID,
					"text_preview", truncateString(update.Message.Text, 50),
				)
				if update.Message.From != nil {
					logEntry = logEntry.With("user_id", update.Message.From.ID)
				}
				if update.Message.Voice != nil {
					logEntry = logEntry.With("voice_duration", update.Message.Voice.Duration)
				}
			case update.CallbackQuery != nil:
				updateType = "callback_query"
				logEntry = logEntry.With(
					"callback_query_id", update.CallbackQuery.ID,
					"user_id", update.CallbackQuery.From.ID,
					"data", update.CallbackQuery.Data,
				)
				if msg := update.CallbackQuery.Message.Message; msg != nil {
					logEntry = logEntry.With("chat_id", msg.Chat.ID, "message_accessible", true)
				} else if inaccessible := update.CallbackQuery.Message.InaccessibleMessage; inaccessible != nil {
					logEntry = logEntry.With("chat_id", inaccessible.Chat.ID, "message_accessible", false)
				}
			default:
				updateType = "other"
			}
			logEntry = logEntry.With("update_type", updateType)

			logEntry.DebugContext(ctx, "Processing update")

			next(ctx, b, update)

			logEntry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
