package autoresponse

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgard/autoreply/internal/conversation"
	"github.com/edgard/autoreply/internal/loop"
	"github.com/edgard/autoreply/internal/openai"
	"github.com/edgard/autoreply/internal/settings"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeHost struct {
	mu       sync.Mutex
	dialogs  []conversation.Dialog
	messages map[int64][]conversation.Message
	sent     []sentMessage
	typing   []int64
}

func (h *fakeHost) UnreadDialogs(context.Context) ([]conversation.Dialog, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.dialogs), nil
}

func (h *fakeHost) RecentMessages(_ context.Context, chatID int64, limit int) ([]conversation.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.messages[chatID]
	return slices.Clone(msgs[max(0, len(msgs)-limit):]), nil
}

func (h *fakeHost) SendTyping(_ context.Context, chatID int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.typing = append(h.typing, chatID)
	return nil
}

func (h *fakeHost) SendMessage(_ context.Context, chatID int64, text string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, sentMessage{chatID, text})
	// a reply marks the chat read
	for i := range h.dialogs {
		if h.dialogs[i].ID == chatID {
			h.dialogs[i].UnreadCount = 0
		}
	}
	return nil
}

func (h *fakeHost) receive(chatID int64, msg conversation.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages[chatID] = append(h.messages[chatID], msg)
	for i := range h.dialogs {
		if h.dialogs[i].ID == chatID {
			h.dialogs[i].UnreadCount++
			return
		}
	}
	h.dialogs = append(h.dialogs, conversation.Dialog{ID: chatID, UnreadCount: 1})
}

func (h *fakeHost) sentMessages() []sentMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.sent)
}

type pendingCall struct {
	req openai.CompletionRequest
	cb  openai.Callback
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls []pendingCall
}

func (f *fakeCompleter) CompleteAsync(_ context.Context, req openai.CompletionRequest, cb openai.Callback) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pendingCall{req: req, cb: cb})
}

func (f *fakeCompleter) snapshot() []pendingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type fakeSettings struct {
	mu   sync.Mutex
	snap settings.Snapshot
}

func (f *fakeSettings) Snapshot() settings.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

type harness struct {
	svc       *Service
	host      *fakeHost
	completer *fakeCompleter
	settings  *fakeSettings
	loop      *loop.Loop
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		host: &fakeHost{
			dialogs: []conversation.Dialog{{ID: 1, UnreadCount: 2}, {ID: 2, UnreadCount: 3}},
			messages: map[int64][]conversation.Message{
				1: {{ID: 10, Text: "hi"}, {ID: 11, Text: "are you there?"}},
				2: {{ID: 20, Text: "not allowed"}},
			},
		},
		completer: &fakeCompleter{},
		settings: &fakeSettings{snap: settings.Snapshot{
			APIToken:     "sk-test",
			Enabled:      true,
			Model:        openai.ModelGPT35Turbo,
			ResponseSize: openai.TierSmall,
			ContextSize:  5,
			EnabledUsers: []string{"1"},
		}},
		loop: loop.New(nil),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.loop.Run(ctx)
	}()

	h.svc = New(h.host, h.completer, h.settings, h.loop, nil, WithInterval(time.Hour))
	t.Cleanup(func() {
		_ = h.svc.Stop()
		cancel()
		<-done
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

// tick runs one evaluation synchronously.
func (h *harness) tick(t *testing.T) {
	t.Helper()
	h.svc.tick(context.Background(), h.svc.generation.Load())
	h.sync(t)
}

// sync waits until everything posted to the loop so far has run.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	if err := h.loop.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("loop.Call() error = %v", err)
	}
}

func (h *harness) context(t *testing.T, chatID int64) (conversation.Context, bool) {
	t.Helper()
	var (
		c  conversation.Context
		ok bool
	)
	if err := h.loop.Call(context.Background(), func() {
		var live *conversation.Context
		if live, ok = h.svc.tracker.Get(chatID); ok {
			c = *live
		}
	}); err != nil {
		t.Fatalf("loop.Call() error = %v", err)
	}
	return c, ok
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStart_WithoutTokenIsNoop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.settings.snap.APIToken = ""

	h.start(t)
	if h.svc.Running() {
		t.Errorf("Running() = true without a token")
	}
}

func TestStart_IsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.start(t)
	gen := h.svc.generation.Load()
	h.start(t)

	if !h.svc.Running() || h.svc.generation.Load() != gen {
		t.Errorf("second Start() restarted the service")
	}
}

func TestTick_ProcessesAllowListedChatAndSkipsOthers(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)

	waitFor(t, "first completion request", func() bool { return len(h.completer.snapshot()) == 1 })
	h.sync(t)

	calls := h.completer.snapshot()
	req := calls[0].req
	if req.SystemPrompt != conversation.SystemPrompt || req.Tier != openai.TierSmall || req.Model != openai.ModelGPT35Turbo {
		t.Errorf("request = %+v", req)
	}
	if !strings.Contains(req.UserContent, "Other: hi\nOther: are you there?\n") {
		t.Errorf("UserContent = %q", req.UserContent)
	}
	if strings.Contains(req.UserContent, "not allowed") {
		t.Errorf("chat outside the allow-list was included")
	}
	if _, ok := h.context(t, 2); ok {
		t.Errorf("chat 2 got tracked state")
	}
}

func TestTick_SingleRequestInFlightPerChat(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	waitFor(t, "first completion request", func() bool { return len(h.completer.snapshot()) == 1 })

	h.tick(t)
	h.tick(t)

	if n := len(h.completer.snapshot()); n != 1 {
		t.Errorf("completion requests = %d, want 1 while the first is in flight", n)
	}
	if c, _ := h.context(t, 1); !c.Processing {
		t.Errorf("Processing = false while a request is in flight")
	}
}

func TestCompletion_SuccessSendsAndAdvancesWatermark(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	waitFor(t, "first completion request", func() bool { return len(h.completer.snapshot()) == 1 })

	h.completer.snapshot()[0].cb(openai.Result{Text: "  I'm here!  "})
	waitFor(t, "send", func() bool { return len(h.host.sentMessages()) == 1 })

	if got := h.host.sentMessages()[0]; got.chatID != 1 || got.text != "I'm here!" {
		t.Errorf("sent = %+v", got)
	}
	h.host.mu.Lock()
	typing := slices.Clone(h.host.typing)
	h.host.mu.Unlock()
	if !slices.Equal(typing, []int64{1}) {
		t.Errorf("typing = %v, want [1]", typing)
	}

	c, _ := h.context(t, 1)
	if c.Processing || c.LastIncorporatedID != 11 {
		t.Errorf("context = %+v, want idle with watermark 11", c)
	}

	// only messages past the watermark make it into the next prompt
	h.host.receive(1, conversation.Message{ID: 12, Text: "hello again"})
	h.tick(t)

	calls := h.completer.snapshot()
	if len(calls) != 2 {
		t.Fatalf("completion requests = %d, want 2", len(calls))
	}
	want := "Generate a response for this conversation:\n\nOther: hello again\n"
	if calls[1].req.UserContent != want {
		t.Errorf("UserContent = %q, want %q", calls[1].req.UserContent, want)
	}
}

func TestCompletion_FailureAndEmptyClearProcessing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result openai.Result
	}{
		{"error", openai.Result{Err: errors.New("HTTP 500: boom")}},
		{"empty text", openai.Result{Text: "   "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.start(t)
			waitFor(t, "first completion request", func() bool { return len(h.completer.snapshot()) == 1 })

			h.completer.snapshot()[0].cb(tt.result)
			h.sync(t)

			c, _ := h.context(t, 1)
			if c.Processing {
				t.Errorf("Processing = true after %s", tt.name)
			}
			if c.LastIncorporatedID != 0 {
				t.Errorf("watermark advanced to %d without a send", c.LastIncorporatedID)
			}
			if len(h.host.sentMessages()) != 0 {
				t.Errorf("sent = %+v, want nothing", h.host.sentMessages())
			}

			// the chat is retried on the next tick
			h.tick(t)
			if n := len(h.completer.snapshot()); n != 2 {
				t.Errorf("completion requests = %d, want 2", n)
			}
		})
	}
}

func TestStop_LateCallbackIsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	waitFor(t, "first completion request", func() bool { return len(h.completer.snapshot()) == 1 })

	if err := h.svc.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	h.completer.snapshot()[0].cb(openai.Result{Text: "too late"})
	h.sync(t)

	if len(h.host.sentMessages()) != 0 {
		t.Errorf("sent = %+v after Stop", h.host.sentMessages())
	}
	h.host.mu.Lock()
	typing := len(h.host.typing)
	h.host.mu.Unlock()
	if typing != 0 {
		t.Errorf("typing indicators = %d after Stop", typing)
	}
	if _, ok := h.context(t, 1); ok {
		t.Errorf("tracker not cleared by Stop")
	}
	if h.svc.Running() {
		t.Errorf("Running() = true after Stop")
	}
}

func TestTick_GloballyDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.settings.snap.Enabled = false
	h.start(t)

	h.tick(t)
	if n := len(h.completer.snapshot()); n != 0 {
		t.Errorf("completion requests = %d while disabled", n)
	}
}

func TestDisable_DropsStateAndIgnoresPendingResult(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.start(t)
	waitFor(t, "first completion request", func() bool { return len(h.completer.snapshot()) == 1 })

	h.svc.Disable(1)
	h.svc.Enable(1)
	h.completer.snapshot()[0].cb(openai.Result{Text: "reply"})
	h.sync(t)

	if len(h.host.sentMessages()) != 0 {
		t.Errorf("result for a discarded context was sent")
	}
	if c, ok := h.context(t, 1); !ok || c.Processing {
		t.Errorf("context after re-enable = %+v, %v", c, ok)
	}

	st, err := h.svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if !st.Running || st.Dispatched != 1 || st.Tracked != 1 || st.InFlight != 0 {
		t.Errorf("stats = %+v", st)
	}
}
