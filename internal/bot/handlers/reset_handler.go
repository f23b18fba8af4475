package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const resetTimeout = 30 * time.Second

// NewResetHandler returns a handler for /ai_reset. It deletes every recorded
// message and dialog and drops cached summaries.
func NewResetHandler(deps HandlerDeps) bot.HandlerFunc {
	return resetHandler{deps}.Handle
}

type resetHandler struct {
	deps HandlerDeps
}

func (h resetHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "reset")
	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Reset handler called with nil Message or From", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Admin requested data reset", "chat_id", chatID, "user_id", update.Message.From.ID)

	timeoutCtx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()

	err := h.deps.Store.DeleteAllMessages(timeoutCtx)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		log.WarnContext(ctx, "Reset operation timed out or was cancelled", "chat_id", chatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.ResetTimeout)
		return
	case err != nil:
		log.ErrorContext(ctx, "Failed to reset data", "error", err, "chat_id", chatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.ResetError)
		return
	}

	h.deps.Summarizer.InvalidateCache()

	log.InfoContext(ctx, "Recorded messages deleted", "chat_id", chatID)
	reply(ctx, b, log, chatID, h.deps.Config.Messages.ResetConfirm)
}
