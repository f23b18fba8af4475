package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/elliotchance/pie/v2"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/autoreply/internal/settings"
)

// NewSetHandler returns a handler for /ai_set <key> <value>. The value is
// the rest of the line and may contain spaces; an omitted value clears text settings.
func NewSetHandler(deps HandlerDeps) bot.HandlerFunc {
	return setHandler{deps}.Handle
}

type setHandler struct {
	deps HandlerDeps
}

func (h setHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "ai_set")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	key, value, ok := parseSetArgs(update.Message.Text)
	if !ok {
		reply(ctx, b, log, chatID, h.usage())
		return
	}

	if err := h.deps.Settings.Set(ctx, key, value); err != nil {
		log.WarnContext(ctx, "Failed to update setting", "key", key, "error", err)
		if errors.Is(err, settings.ErrUnknownKey) {
			reply(ctx, b, log, chatID, h.usage())
			return
		}
		reply(ctx, b, log, chatID, "❌ "+err.Error())
		return
	}

	log.InfoContext(ctx, "Setting updated", "key", key)
	reply(ctx, b, log, chatID, h.deps.Config.Messages.SettingsSaved)
}

func (h setHandler) usage() string {
	keys := pie.Map(settings.Keys(), func(k settings.Key) string { return string(k) })
	return h.deps.Config.Messages.SettingsUsage + strings.Join(keys, ", ")
}

// parseSetArgs splits "/ai_set key rest of value" into key and value.
func parseSetArgs(text string) (key, value string, ok bool) {
	_, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	args = strings.TrimSpace(args)
	if args == "" {
		return "", "", false
	}
	key, value, _ = strings.Cut(args, " ")
	return key, strings.TrimSpace(value), true
}
