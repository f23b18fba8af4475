package database

import "time"

// Message is a recorded Telegram message, incoming or sent by the bot.
// MessageID is the Telegram id and is unique only within its chat.
type Message struct {
	ID            int64     `db:"id"`
	ChatID        int64     `db:"chat_id"`
	MessageID     int64     `db:"message_id"`
	UserID        int64     `db:"user_id"`
	Outgoing      bool      `db:"outgoing"`
	Content       string    `db:"content"`
	VoiceFileID   string    `db:"voice_file_id"`
	Transcription string    `db:"transcription"`
	Timestamp     time.Time `db:"timestamp"`
	CreatedAt     time.Time `db:"created_at"`
}

// IsVoice reports whether the message carries a voice note.
func (m *Message) IsVoice() bool {
	return m.VoiceFileID != ""
}

// Dialog tracks per-chat unread state. UnreadCount counts incoming messages
// received since the bot last sent a message to the chat.
type Dialog struct {
	ChatID        int64     `db:"chat_id"`
	UnreadCount   int       `db:"unread_count"`
	LastMessageID int64     `db:"last_message_id"`
	UpdatedAt     time.Time `db:"updated_at"`
}
