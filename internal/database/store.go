package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessage records a message and updates the chat's dialog state.
	// Incoming messages bump the unread count; outgoing ones reset it.
	// Saving an already recorded (chat_id, message_id) pair is a no-op.
	SaveMessage(ctx context.Context, message *Message) error

	// GetMessage returns a single message, or nil, nil if it is not recorded.
	GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error)

	// GetRecentMessages returns up to limit most recent messages of a chat, oldest first.
	GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]Message, error)

	// SaveTranscription stores the transcription of a voice message.
	SaveTranscription(ctx context.Context, chatID, messageID int64, text string) error

	// ListUnreadDialogs returns dialogs with at least one unread message.
	ListUnreadDialogs(ctx context.Context) ([]Dialog, error)

	// MarkDialogRead resets the unread count of a chat.
	MarkDialogRead(ctx context.Context, chatID int64) error

	// LoadSettings returns every persisted setting.
	LoadSettings(ctx context.Context) (map[string]string, error)

	// SaveSettings upserts the given settings in a single transaction.
	SaveSettings(ctx context.Context, values map[string]string) error

	// DeleteMessagesBefore removes messages older than cutoff and returns how many were deleted.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteAllMessages deletes all messages and dialog state in a single transaction.
	DeleteAllMessages(ctx context.Context) error

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, committing on success.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "op", op, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "op", op, "error", rollbackErr)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "op", op, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.ChatID == 0 {
		return fmt.Errorf("message must have a non-zero chat_id")
	}
	if message.MessageID == 0 {
		return fmt.Errorf("message must have a non-zero message_id")
	}
	if message.Timestamp.IsZero() {
		return fmt.Errorf("message must have a non-zero timestamp")
	}

	now := nowUTC()
	message.CreatedAt = now
	message.Timestamp = message.Timestamp.UTC()

	return s.withTx(ctx, "save_message", func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, `
			INSERT INTO messages (chat_id, message_id, user_id, outgoing, content, voice_file_id, transcription, timestamp, created_at)
			VALUES (:chat_id, :message_id, :user_id, :outgoing, :content, :voice_file_id, :transcription, :timestamp, :created_at)
			ON CONFLICT (chat_id, message_id) DO NOTHING;
		`, message)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error saving message", "chat_id", message.ChatID, "message_id", message.MessageID, "error", err)
			return fmt.Errorf("failed to save message (chat %d, message %d): %w", message.ChatID, message.MessageID, err)
		}

		if affected, err := result.RowsAffected(); err == nil && affected == 0 {
			s.logger.DebugContext(ctx, "Message already recorded", "chat_id", message.ChatID, "message_id", message.MessageID)
			return nil
		}
		if id, err := result.LastInsertId(); err == nil {
			message.ID = id
		}

		unread := 1
		if message.Outgoing {
			unread = 0
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO dialogs (chat_id, unread_count, last_message_id, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (chat_id) DO UPDATE SET
				unread_count    = CASE WHEN excluded.unread_count = 0 THEN 0 ELSE dialogs.unread_count + 1 END,
				last_message_id = MAX(dialogs.last_message_id, excluded.last_message_id),
				updated_at      = excluded.updated_at;
		`, message.ChatID, unread, message.MessageID, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error updating dialog", "chat_id", message.ChatID, "error", err)
			return fmt.Errorf("failed to update dialog %d: %w", message.ChatID, err)
		}

		s.logger.DebugContext(ctx, "Message saved successfully",
			"chat_id", message.ChatID, "message_id", message.MessageID, "outgoing", message.Outgoing)
		return nil
	})
}

func (s *sqlxStore) GetMessage(ctx context.Context, chatID, messageID int64) (*Message, error) {
	var msg Message
	err := s.db.GetContext(ctx, &msg, `
		SELECT id, chat_id, message_id, user_id, outgoing, content, voice_file_id, transcription, timestamp, created_at
		FROM messages
		WHERE chat_id = ? AND message_id = ?;
	`, chatID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message (chat %d, message %d): %w", chatID, messageID, err)
	}
	return &msg, nil
}

func (s *sqlxStore) GetRecentMessages(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}
	if limit <= 0 {
		return []Message{}, nil
	}

	var messages []Message
	err := s.db.SelectContext(ctx, &messages, `
		SELECT id, chat_id, message_id, user_id, outgoing, content, voice_file_id, transcription, timestamp, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY message_id DESC
		LIMIT ?;
	`, chatID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "chat_id", chatID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for chat %d: %w", chatID, err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *sqlxStore) SaveTranscription(ctx context.Context, chatID, messageID int64, text string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET transcription = ? WHERE chat_id = ? AND message_id = ?;`,
		text, chatID, messageID)
	if err != nil {
		return fmt.Errorf("failed to save transcription (chat %d, message %d): %w", chatID, messageID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		s.logger.WarnContext(ctx, "Transcription saved for unknown message", "chat_id", chatID, "message_id", messageID)
	}
	return nil
}

func (s *sqlxStore) ListUnreadDialogs(ctx context.Context) ([]Dialog, error) {
	var dialogs []Dialog
	err := s.db.SelectContext(ctx, &dialogs, `
		SELECT chat_id, unread_count, last_message_id, updated_at
		FROM dialogs
		WHERE unread_count > 0
		ORDER BY updated_at DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unread dialogs: %w", err)
	}
	return dialogs, nil
}

func (s *sqlxStore) MarkDialogRead(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE dialogs SET unread_count = 0, updated_at = ? WHERE chat_id = ?;`, nowUTC(), chatID)
	if err != nil {
		return fmt.Errorf("failed to mark dialog %d read: %w", chatID, err)
	}
	return nil
}

func (s *sqlxStore) LoadSettings(ctx context.Context) (map[string]string, error) {
	rows := []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM settings;`); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}
	return values, nil
}

func (s *sqlxStore) SaveSettings(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	now := nowUTC()
	return s.withTx(ctx, "save_settings", func(tx *sqlx.Tx) error {
		for key, value := range values {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;
			`, key, value, now)
			if err != nil {
				return fmt.Errorf("failed to save setting %q: %w", key, err)
			}
		}
		return nil
	})
}

func (s *sqlxStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp < ?;`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

func (s *sqlxStore) DeleteAllMessages(ctx context.Context) error {
	var messagesCount, dialogsCount int64
	err := s.withTx(ctx, "delete_all_messages", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM messages;`)
		if err != nil {
			return fmt.Errorf("failed to delete messages during reset: %w", err)
		}
		messagesCount, _ = result.RowsAffected()

		result, err = tx.ExecContext(ctx, `DELETE FROM dialogs;`)
		if err != nil {
			return fmt.Errorf("failed to delete dialogs during reset: %w", err)
		}
		dialogsCount, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to reset messages", "error", err)
		return err
	}

	s.logger.InfoContext(ctx, "Successfully reset recorded messages",
		"messages_deleted", messagesCount, "dialogs_deleted", dialogsCount)
	return nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "ANALYZE;"); err != nil {
		s.logger.WarnContext(ctx, "ANALYZE failed after VACUUM", "error", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance completed successfully")
	return nil
}
