package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { CloseDB(db) })

	return NewStore(db, nil)
}

func saveMessages(t *testing.T, s Store, msgs ...Message) {
	t.Helper()
	for i := range msgs {
		if err := s.SaveMessage(context.Background(), &msgs[i]); err != nil {
			t.Fatalf("SaveMessage(%d) error = %v", msgs[i].MessageID, err)
		}
	}
}

func TestSaveMessage_UnreadTracking(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	saveMessages(t, s,
		Message{ChatID: 10, MessageID: 1, UserID: 5, Content: "hi", Timestamp: ts},
		Message{ChatID: 10, MessageID: 2, UserID: 5, Content: "there", Timestamp: ts.Add(time.Second)},
		Message{ChatID: -20, MessageID: 7, UserID: 6, Content: "group", Timestamp: ts},
	)

	dialogs, err := s.ListUnreadDialogs(ctx)
	if err != nil {
		t.Fatalf("ListUnreadDialogs() error = %v", err)
	}
	unread := map[int64]Dialog{}
	for _, d := range dialogs {
		unread[d.ChatID] = d
	}
	if got := unread[10].UnreadCount; got != 2 {
		t.Errorf("chat 10 unread = %d, want 2", got)
	}
	if got := unread[10].LastMessageID; got != 2 {
		t.Errorf("chat 10 last message = %d, want 2", got)
	}
	if got := unread[-20].UnreadCount; got != 1 {
		t.Errorf("chat -20 unread = %d, want 1", got)
	}

	// an outgoing message marks the dialog read
	saveMessages(t, s, Message{ChatID: 10, MessageID: 3, UserID: 99, Outgoing: true, Content: "reply", Timestamp: ts.Add(2 * time.Second)})

	dialogs, err = s.ListUnreadDialogs(ctx)
	if err != nil {
		t.Fatalf("ListUnreadDialogs() error = %v", err)
	}
	if len(dialogs) != 1 || dialogs[0].ChatID != -20 {
		t.Errorf("unread dialogs = %+v, want only chat -20", dialogs)
	}

	if err := s.MarkDialogRead(ctx, -20); err != nil {
		t.Fatalf("MarkDialogRead() error = %v", err)
	}
	dialogs, _ = s.ListUnreadDialogs(ctx)
	if len(dialogs) != 0 {
		t.Errorf("unread dialogs after MarkDialogRead = %+v, want none", dialogs)
	}
}

func TestSaveMessage_DuplicateIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	ts := time.Now()

	saveMessages(t, s,
		Message{ChatID: 1, MessageID: 1, Content: "a", Timestamp: ts},
		Message{ChatID: 1, MessageID: 1, Content: "a", Timestamp: ts},
	)

	dialogs, err := s.ListUnreadDialogs(ctx)
	if err != nil {
		t.Fatalf("ListUnreadDialogs() error = %v", err)
	}
	if len(dialogs) != 1 || dialogs[0].UnreadCount != 1 {
		t.Errorf("dialogs = %+v, want one dialog with unread 1", dialogs)
	}
}

func TestSaveMessage_Validation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	tests := []struct {
		name string
		msg  *Message
	}{
		{"nil", nil},
		{"zero chat", &Message{MessageID: 1, Timestamp: time.Now()}},
		{"zero message id", &Message{ChatID: 1, Timestamp: time.Now()}},
		{"zero timestamp", &Message{ChatID: 1, MessageID: 1}},
	}
	for _, tt := range tests {
		if err := s.SaveMessage(context.Background(), tt.msg); err == nil {
			t.Errorf("SaveMessage(%s) error = nil, want error", tt.name)
		}
	}
}

func TestGetRecentMessages_OldestFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	ts := time.Now()

	for i := int64(1); i <= 5; i++ {
		saveMessages(t, s, Message{ChatID: 3, MessageID: i, Content: "m", Timestamp: ts.Add(time.Duration(i) * time.Second)})
	}

	msgs, err := s.GetRecentMessages(ctx, 3, 3)
	if err != nil {
		t.Fatalf("GetRecentMessages() error = %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, want := range []int64{3, 4, 5} {
		if msgs[i].MessageID != want {
			t.Errorf("msgs[%d].MessageID = %d, want %d", i, msgs[i].MessageID, want)
		}
	}

	if _, err := s.GetRecentMessages(ctx, 0, 3); err == nil {
		t.Errorf("GetRecentMessages(chat 0) error = nil, want error")
	}
}

func TestVoiceTranscription(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	saveMessages(t, s, Message{ChatID: 8, MessageID: 40, VoiceFileID: "file-1", Timestamp: time.Now()})

	msg, err := s.GetMessage(ctx, 8, 40)
	if err != nil || msg == nil {
		t.Fatalf("GetMessage() = %v, %v; want message", msg, err)
	}
	if !msg.IsVoice() || msg.Transcription != "" {
		t.Errorf("message = %+v, want voice without transcription", msg)
	}

	if err := s.SaveTranscription(ctx, 8, 40, "hello from voice"); err != nil {
		t.Fatalf("SaveTranscription() error = %v", err)
	}
	msg, _ = s.GetMessage(ctx, 8, 40)
	if msg.Transcription != "hello from voice" {
		t.Errorf("Transcription = %q, want %q", msg.Transcription, "hello from voice")
	}

	missing, err := s.GetMessage(ctx, 8, 41)
	if err != nil || missing != nil {
		t.Errorf("GetMessage(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SaveSettings(ctx, map[string]string{"ai.model": "gpt-4o", "voice.cache_summaries": "false"}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}
	if err := s.SaveSettings(ctx, map[string]string{"ai.model": "gpt-3.5-turbo"}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	values, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings() error = %v", err)
	}
	if values["ai.model"] != "gpt-3.5-turbo" || values["voice.cache_summaries"] != "false" {
		t.Errorf("settings = %v", values)
	}
}

func TestRetentionAndReset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	saveMessages(t, s,
		Message{ChatID: 1, MessageID: 1, Content: "old", Timestamp: now.Add(-48 * time.Hour)},
		Message{ChatID: 1, MessageID: 2, Content: "new", Timestamp: now},
	)

	deleted, err := s.DeleteMessagesBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteMessagesBefore() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	if err := s.DeleteAllMessages(ctx); err != nil {
		t.Fatalf("DeleteAllMessages() error = %v", err)
	}
	msgs, _ := s.GetRecentMessages(ctx, 1, 10)
	dialogs, _ := s.ListUnreadDialogs(ctx)
	if len(msgs) != 0 || len(dialogs) != 0 {
		t.Errorf("after reset: %d messages, %d dialogs; want none", len(msgs), len(dialogs))
	}

	if err := s.RunSQLMaintenance(ctx); err != nil {
		t.Errorf("RunSQLMaintenance() error = %v", err)
	}
}

func TestExtractDBNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"storage.db", "storage.db"},
		{"file:storage.db", "storage.db"},
		{"file:storage.db?cache=shared", "storage.db"},
		{"file:my%20db.db", "my db.db"},
	}
	for _, tt := range tests {
		if got := ExtractDBNameFromPath(tt.in); got != tt.want {
			t.Errorf("ExtractDBNameFromPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
