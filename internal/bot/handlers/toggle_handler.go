package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewToggleHandler returns a handler for /ai_enable and /ai_disable. The
// target chat is the optional argument, or the current chat.
func NewToggleHandler(deps HandlerDeps, enable bool) bot.HandlerFunc {
	return toggleHandler{deps: deps, enable: enable}.Handle
}

type toggleHandler struct {
	deps   HandlerDeps
	enable bool
}

func (h toggleHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "ai_toggle", "enable", h.enable)
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	target, err := targetChat(update.Message.Text, chatID)
	if err != nil {
		reply(ctx, b, log, chatID, "❌ "+err.Error())
		return
	}

	if err := h.deps.Settings.SetChatEnabled(ctx, target, h.enable); err != nil {
		log.ErrorContext(ctx, "Failed to update allow-list", "target_chat_id", target, "error", err)
		reply(ctx, b, log, chatID, "❌ "+err.Error())
		return
	}

	if h.enable {
		h.deps.AutoResponse.Enable(target)
		reply(ctx, b, log, chatID, fmt.Sprintf("✅ Automatic replies enabled for chat %d.", target))
	} else {
		h.deps.AutoResponse.Disable(target)
		reply(ctx, b, log, chatID, fmt.Sprintf("⏸️ Automatic replies disabled for chat %d.", target))
	}
	log.InfoContext(ctx, "Chat allow-list updated", "target_chat_id", target)
}

func targetChat(text string, current int64) (int64, error) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return current, nil
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid chat id %q", fields[1])
	}
	return id, nil
}
