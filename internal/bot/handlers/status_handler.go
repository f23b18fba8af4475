package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/autoreply/internal/settings"
)

const statusTimeout = 5 * time.Second

// NewStatusHandler returns a handler for /ai_status.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "ai_status")
	if update.Message == nil {
		return
	}

	statusCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	reply(ctx, b, log, update.Message.Chat.ID, h.render(statusCtx))
}

func (h statusHandler) render(ctx context.Context) string {
	var sb strings.Builder

	state := "stopped"
	if h.deps.AutoResponse.Running() {
		state = "running"
	}
	fmt.Fprintf(&sb, "🤖 Auto-response: %s\n", state)

	if stats, err := h.deps.AutoResponse.Stats(ctx); err == nil {
		fmt.Fprintf(&sb, "Ticks: %d, requests: %d, sent: %d, failed: %d\n",
			stats.Ticks, stats.Dispatched, stats.Sent, stats.Failed)
		fmt.Fprintf(&sb, "Tracked chats: %d, in flight: %d\n", stats.Tracked, stats.InFlight)
	}
	if n, err := h.deps.Summarizer.CacheLen(ctx); err == nil {
		fmt.Fprintf(&sb, "Cached summaries: %d\n", n)
	}

	snap := h.deps.Settings.Snapshot().Redacted()
	sb.WriteString("\nSettings:\n")
	for _, key := range settings.Keys() {
		fmt.Fprintf(&sb, "%s = %s\n", key, snap.Get(key))
	}

	return strings.TrimRight(sb.String(), "\n")
}
