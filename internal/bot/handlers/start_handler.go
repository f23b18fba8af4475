package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	log.InfoContext(ctx, "Handling /start command", "chat_id", update.Message.Chat.ID, "user_id", update.Message.From.ID)
	reply(ctx, b, log, update.Message.Chat.ID, withBotName(h.deps, h.deps.Config.Messages.Welcome))
}

// withBotName substitutes @botname with the bot's username when it is known.
func withBotName(deps HandlerDeps, text string) string {
	if info := deps.Config.Telegram.BotInfo; info != nil && info.Username != "" {
		return strings.ReplaceAll(text, "@botname", "@"+info.Username)
	}
	return text
}
