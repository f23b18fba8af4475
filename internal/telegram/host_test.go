package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/autoreply/internal/conversation"
	"github.com/edgard/autoreply/internal/database"
)

type inlineDispatcher struct{}

func (inlineDispatcher) Submit(task func()) error {
	task()
	return nil
}

type rejectingDispatcher struct{}

func (rejectingDispatcher) Submit(func()) error { return errors.New("queue full") }

type fakeSender struct {
	mu      sync.Mutex
	texts   []string
	actions []models.ChatAction
	nextID  int
	err     error
}

func (f *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	f.texts = append(f.texts, params.Text)
	return &models.Message{ID: f.nextID, Date: int(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix())}, nil
}

func (f *fakeSender) SendChatAction(_ context.Context, params *bot.SendChatActionParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, params.Action)
	return true, nil
}

type fakeStore struct {
	dialogs  []database.Dialog
	messages []database.Message
	saved    []database.Message
	err      error
}

func (f *fakeStore) ListUnreadDialogs(context.Context) ([]database.Dialog, error) {
	return f.dialogs, f.err
}

func (f *fakeStore) GetRecentMessages(_ context.Context, _ int64, limit int) ([]database.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

func (f *fakeStore) SaveMessage(_ context.Context, m *database.Message) error {
	f.saved = append(f.saved, *m)
	return nil
}

func TestHost_UnreadDialogs(t *testing.T) {
	t.Parallel()
	store := &fakeStore{dialogs: []database.Dialog{{ChatID: 1, UnreadCount: 2}, {ChatID: -5, UnreadCount: 1}}}
	h := NewHost(&fakeSender{}, store, inlineDispatcher{}, 99, nil)

	got, err := h.UnreadDialogs(context.Background())
	if err != nil {
		t.Fatalf("UnreadDialogs() error = %v", err)
	}
	want := []conversation.Dialog{{ID: 1, UnreadCount: 2}, {ID: -5, UnreadCount: 1}}
	if len(got) != len(want) {
		t.Fatalf("UnreadDialogs() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dialog %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHost_RecentMessages(t *testing.T) {
	t.Parallel()
	store := &fakeStore{messages: []database.Message{
		{MessageID: 1, Content: "old"},
		{MessageID: 2, Content: "hello"},
		{MessageID: 3, VoiceFileID: "f", Transcription: "spoken words"},
		{MessageID: 4, Content: "mine", Outgoing: true},
	}}
	h := NewHost(&fakeSender{}, store, inlineDispatcher{}, 99, nil)

	got, err := h.RecentMessages(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	want := []conversation.Message{
		{ID: 2, Text: "hello"},
		{ID: 3, Text: "spoken words"},
		{ID: 4, Text: "mine", Outgoing: true},
	}
	if len(got) != len(want) {
		t.Fatalf("RecentMessages() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestHost_RecentMessagesError(t *testing.T) {
	t.Parallel()
	h := NewHost(&fakeSender{}, &fakeStore{err: errors.New("db down")}, inlineDispatcher{}, 99, nil)

	if _, err := h.RecentMessages(context.Background(), 1, 3); err == nil {
		t.Error("RecentMessages() error = nil, want error")
	}
	if _, err := h.UnreadDialogs(context.Background()); err == nil {
		t.Error("UnreadDialogs() error = nil, want error")
	}
}

func TestHost_SendMessageRecordsOutgoing(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	store := &fakeStore{}
	h := NewHost(sender, store, inlineDispatcher{}, 99, nil)

	if err := h.SendMessage(context.Background(), 42, "hi there"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if len(sender.texts) != 1 || sender.texts[0] != "hi there" {
		t.Errorf("sent texts = %v, want [hi there]", sender.texts)
	}
	if len(store.saved) != 1 {
		t.Fatalf("saved messages = %d, want 1", len(store.saved))
	}
	saved := store.saved[0]
	if !saved.Outgoing || saved.ChatID != 42 || saved.MessageID != 1 || saved.UserID != 99 || saved.Content != "hi there" {
		t.Errorf("saved message = %+v", saved)
	}
	if saved.Timestamp.IsZero() {
		t.Error("saved message timestamp is zero")
	}
}

func TestHost_SendFailureIsNotRecorded(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{err: errors.New("forbidden")}
	store := &fakeStore{}
	h := NewHost(sender, store, inlineDispatcher{}, 99, nil)

	if err := h.SendMessage(context.Background(), 42, "hi"); err != nil {
		t.Fatalf("SendMessage() error = %v, want nil for queued send", err)
	}
	if len(store.saved) != 0 {
		t.Errorf("saved messages = %d, want 0", len(store.saved))
	}
}

func TestHost_SendTyping(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	h := NewHost(sender, &fakeStore{}, inlineDispatcher{}, 99, nil)

	if err := h.SendTyping(context.Background(), 42); err != nil {
		t.Fatalf("SendTyping() error = %v", err)
	}
	if len(sender.actions) != 1 || sender.actions[0] != models.ChatActionTyping {
		t.Errorf("actions = %v, want [typing]", sender.actions)
	}
}

func TestHost_QueueRejection(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	h := NewHost(sender, &fakeStore{}, rejectingDispatcher{}, 99, nil)

	if err := h.SendMessage(context.Background(), 1, "x"); err == nil {
		t.Error("SendMessage() error = nil, want queue error")
	}
	if err := h.SendTyping(context.Background(), 1); err == nil {
		t.Error("SendTyping() error = nil, want queue error")
	}
	if len(sender.texts) != 0 {
		t.Errorf("sent texts = %v, want none", sender.texts)
	}
}
