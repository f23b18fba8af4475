package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewTestHandler returns a handler for /ai_test [api_key].
func NewTestHandler(deps HandlerDeps) bot.HandlerFunc {
	return testHandler{deps}.Handle
}

type testHandler struct {
	deps HandlerDeps
}

func (h testHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "ai_test")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	var key string
	if fields := strings.Fields(update.Message.Text); len(fields) > 1 {
		key = fields[1]
	}

	report, err := h.deps.AI.TestConnection(ctx, key)
	if err != nil {
		log.WarnContext(ctx, "Connection test failed", "error", err)
		reply(ctx, b, log, chatID, "❌ "+err.Error())
		return
	}

	reply(ctx, b, log, chatID, fmt.Sprintf("✅ %s\nModel: %s\nResponse time: %s",
		report.Message, report.Model, report.ResponseTime.Round(time.Millisecond)))
}
