package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/autoreply/internal/database"
)

const dbSaveTimeout = 5 * time.Second

// NewRecordHandler returns the default handler. It records every incoming
// message that no command handler claimed, which marks its dialog unread.
func NewRecordHandler(deps HandlerDeps) bot.HandlerFunc {
	return recordHandler{deps}.Handle
}

type recordHandler struct {
	deps HandlerDeps
}

func (h recordHandler) Handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	log := h.deps.Logger.With("handler", "record", "chat_id", msg.Chat.ID, "message_id", msg.ID)

	record := toRecord(msg)
	if record.Content == "" && record.VoiceFileID == "" {
		log.DebugContext(ctx, "Skipping message without text or voice")
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbSaveTimeout)
	defer cancel()

	if err := h.deps.Store.SaveMessage(dbCtx, record); err != nil {
		log.ErrorContext(ctx, "Failed to record message", "error", err)
		return
	}
	log.DebugContext(ctx, "Message recorded", "voice", record.IsVoice())
}

// toRecord converts a Telegram message into its stored form. Captions stand
// in for text on media messages.
func toRecord(msg *models.Message) *database.Message {
	record := &database.Message{
		ChatID:    msg.Chat.ID,
		MessageID: int64(msg.ID),
		Content:   msg.Text,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}
	if record.Content == "" {
		record.Content = msg.Caption
	}
	if msg.From != nil {
		record.UserID = msg.From.ID
	}
	if msg.Voice != nil {
		record.VoiceFileID = msg.Voice.FileID
	}
	if msg.Date == 0 {
		record.Timestamp = time.Now()
	}
	return record
}
