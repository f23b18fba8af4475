package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/autoreply/internal/conversation"
	"github.com/edgard/autoreply/internal/database"
)

const sendTimeout = 10 * time.Second

// Sender is the part of *bot.Bot used to talk to chats.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendChatAction(ctx context.Context, params *bot.SendChatActionParams) (bool, error)
}

// MessageStore is the part of database.Store the host reads and records messages with.
type MessageStore interface {
	ListUnreadDialogs(ctx context.Context) ([]database.Dialog, error)
	GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]database.Message, error)
	SaveMessage(ctx context.Context, message *database.Message) error
}

// Dispatcher runs blocking work off the caller's goroutine.
type Dispatcher interface {
	Submit(task func()) error
}

// Host exposes recorded chats to the auto-response service and delivers its
// replies through the Bot API. Sends are queued on the dispatcher and every
// delivered reply is recorded as outgoing, which marks the dialog read.
type Host struct {
	sender     Sender
	store      MessageStore
	dispatcher Dispatcher
	selfID     int64
	logger     *slog.Logger
}

// NewHost creates a Host. selfID is the bot's own user id, stored as the
// author of outgoing messages.
func NewHost(sender Sender, store MessageStore, dispatcher Dispatcher, selfID int64, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		sender:     sender,
		store:      store,
		dispatcher: dispatcher,
		selfID:     selfID,
		logger:     logger.With("component", "telegram_host"),
	}
}

// UnreadDialogs lists recorded dialogs with unread incoming messages.
func (h *Host) UnreadDialogs(ctx context.Context) ([]conversation.Dialog, error) {
	dialogs, err := h.store.ListUnreadDialogs(ctx)
	if err != nil {
		return nil, err
	}
	return pie.Map(dialogs, func(d database.Dialog) conversation.Dialog {
		return conversation.Dialog{ID: d.ChatID, UnreadCount: d.UnreadCount}
	}), nil
}

// RecentMessages returns up to limit messages, newest last. Voice messages
// without text are represented by their transcription.
func (h *Host) RecentMessages(ctx context.Context, chatID int64, limit int) ([]conversation.Message, error) {
	msgs, err := h.store.GetRecentMessages(ctx, chatID, limit)
	if err != nil {
		return nil, err
	}
	return pie.Map(msgs, func(m database.Message) conversation.Message {
		text := m.Content
		if text == "" {
			text = m.Transcription
		}
		return conversation.Message{ID: m.MessageID, Text: text, Outgoing: m.Outgoing}
	}), nil
}

// SendTyping queues a typing indicator for chatID.
func (h *Host) SendTyping(ctx context.Context, chatID int64) error {
	return h.submit(func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()

		if _, err := h.sender.SendChatAction(sendCtx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: models.ChatActionTyping,
		}); err != nil {
			h.logger.WarnContext(ctx, "Failed to send typing action", "chat_id", chatID, "error", err)
		}
	})
}

// SendMessage queues text for delivery to chatID. A nil error means the send
// was accepted by the queue, not that Telegram delivered it.
func (h *Host) SendMessage(ctx context.Context, chatID int64, text string) error {
	return h.submit(func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()

		sent, err := h.sender.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: chatID, Text: text})
		if err != nil {
			h.logger.ErrorContext(ctx, "Failed to send reply", "chat_id", chatID, "error", err)
			return
		}
		h.record(sendCtx, chatID, text, sent)
	})
}

func (h *Host) record(ctx context.Context, chatID int64, text string, sent *models.Message) {
	if sent == nil {
		return
	}
	ts := time.Now()
	if sent.Date != 0 {
		ts = time.Unix(int64(sent.Date), 0)
	}
	msg := &database.Message{
		ChatID:    chatID,
		MessageID: int64(sent.ID),
		UserID:    h.selfID,
		Outgoing:  true,
		Content:   text,
		Timestamp: ts,
	}
	if err := h.store.SaveMessage(ctx, msg); err != nil {
		h.logger.ErrorContext(ctx, "Failed to record sent reply", "chat_id", chatID, "message_id", sent.ID, "error", err)
	}
}

func (h *Host) submit(task func()) error {
	if err := h.dispatcher.Submit(task); err != nil {
		return fmt.Errorf("failed to queue telegram request: %w", err)
	}
	return nil
}
