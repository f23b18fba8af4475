package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/autoreply/internal/cache"
	"github.com/edgard/autoreply/internal/summarize"
)

const (
	summarizeTimeout         = 2 * time.Minute
	regenerateCallbackPrefix = "summary:regen:"
)

// NewSummarizeHandler returns a handler for /summarize sent as a reply to a voice message.
func NewSummarizeHandler(deps HandlerDeps) bot.HandlerFunc {
	return summarizeHandler{deps}.Handle
}

type summarizeHandler struct {
	deps HandlerDeps
}

func (h summarizeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "summarize")

	msg := update.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID

	target := msg.ReplyToMessage
	if target == nil || target.Voice == nil {
		reply(ctx, b, log, chatID, h.deps.Config.Messages.SummarizeUsage)
		return
	}

	log.InfoContext(ctx, "Summarizing voice message", "chat_id", chatID, "message_id", target.ID)

	_, _ = b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping})

	sumCtx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	req := voiceRequest(sumCtx, h.deps, log, chatID, int64(target.ID), target.Voice.FileID)
	text, err := h.deps.Summarizer.Summarize(sumCtx, req)
	if err != nil {
		log.WarnContext(ctx, "Summary failed", "chat_id", chatID, "message_id", target.ID, "error", err)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.SummaryError+err.Error())
		return
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          chatID,
		Text:            h.deps.Config.Messages.SummaryHeader + text,
		ReplyParameters: &models.ReplyParameters{MessageID: target.ID},
		ReplyMarkup:     regenerateKeyboard(h.deps, chatID, int64(target.ID)),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send summary", "error", err, "chat_id", chatID)
	}
}

// NewRegenerateHandler returns the callback handler of the Regenerate button.
func NewRegenerateHandler(deps HandlerDeps) bot.HandlerFunc {
	return regenerateHandler{deps}.Handle
}

type regenerateHandler struct {
	deps HandlerDeps
}

func (h regenerateHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "regenerate")

	query := update.CallbackQuery
	if query == nil {
		return
	}
	defer func() {
		if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: query.ID}); err != nil {
			log.WarnContext(ctx, "Failed to answer callback query", "error", err)
		}
	}()

	key, err := parseRegenerateData(query.Data)
	if err != nil {
		log.WarnContext(ctx, "Malformed regenerate callback", "data", query.Data, "error", err)
		return
	}
	summary := query.Message.Message
	if summary == nil {
		log.WarnContext(ctx, "Summary message is no longer accessible", "chat_id", key.ChatID)
		return
	}

	sumCtx, cancel := context.WithTimeout(ctx, summarizeTimeout)
	defer cancel()

	fileID := h.voiceFileID(sumCtx, summary, key)
	if fileID == "" {
		log.WarnContext(ctx, "Voice message not found for regeneration", "chat_id", key.ChatID, "message_id", key.MessageID)
		return
	}

	req := voiceRequest(sumCtx, h.deps, log, key.ChatID, key.MessageID, fileID)
	text, err := h.deps.Summarizer.Regenerate(sumCtx, req)
	if err != nil {
		text = h.deps.Config.Messages.SummaryError + err.Error()
	} else {
		text = h.deps.Config.Messages.SummaryHeader + text
	}

	_, err = b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      summary.Chat.ID,
		MessageID:   summary.ID,
		Text:        text,
		ReplyMarkup: regenerateKeyboard(h.deps, key.ChatID, key.MessageID),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to update summary", "error", err, "chat_id", summary.Chat.ID)
	}
}

// voiceFileID prefers the voice note the summary replies to and falls back
// to the recorded message.
func (h regenerateHandler) voiceFileID(ctx context.Context, summary *models.Message, key cache.Key) string {
	if target := summary.ReplyToMessage; target != nil && target.Voice != nil && int64(target.ID) == key.MessageID {
		return target.Voice.FileID
	}
	stored, err := h.deps.Store.GetMessage(ctx, key.ChatID, key.MessageID)
	if err != nil || stored == nil {
		return ""
	}
	return stored.VoiceFileID
}

// voiceRequest builds a summary request, reusing a stored transcription when
// one exists and persisting fresh ones.
func voiceRequest(ctx context.Context, deps HandlerDeps, log *slog.Logger, chatID, messageID int64, fileID string) summarize.Request {
	req := summarize.Request{
		Key:   cache.Key{ChatID: chatID, MessageID: messageID},
		Audio: deps.Voice.Source(fileID),
		OnTranscribed: func(text string) {
			dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dbSaveTimeout)
			defer cancel()
			if err := deps.Store.SaveTranscription(dbCtx, chatID, messageID, text); err != nil {
				log.WarnContext(dbCtx, "Failed to save transcription", "error", err, "chat_id", chatID, "message_id", messageID)
			}
		},
	}
	if stored, err := deps.Store.GetMessage(ctx, chatID, messageID); err == nil && stored != nil {
		req.Transcription = stored.Transcription
	}
	return req
}

func regenerateKeyboard(deps HandlerDeps, chatID, messageID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{{
			Text:         deps.Config.Messages.RegenerateButton,
			CallbackData: fmt.Sprintf("%s%d:%d", regenerateCallbackPrefix, chatID, messageID),
		}}},
	}
}

func parseRegenerateData(data string) (cache.Key, error) {
	rest, ok := strings.CutPrefix(data, regenerateCallbackPrefix)
	if !ok {
		return cache.Key{}, fmt.Errorf("missing prefix")
	}
	chatPart, msgPart, ok := strings.Cut(rest, ":")
	if !ok {
		return cache.Key{}, fmt.Errorf("missing message id")
	}
	chatID, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		return cache.Key{}, fmt.Errorf("invalid chat id: %w", err)
	}
	messageID, err := strconv.ParseInt(msgPart, 10, 64)
	if err != nil {
		return cache.Key{}, fmt.Errorf("invalid message id: %w", err)
	}
	key := cache.Key{ChatID: chatID, MessageID: messageID}
	if !key.Valid() {
		return cache.Key{}, fmt.Errorf("invalid message id: %d", messageID)
	}
	return key, nil
}
