// Package autoresponse periodically replies to unread allow-listed chats.
//
// A gocron scheduler with a single execution slot carries the periodic tick
// and the delayed sends. Completion requests run on the shared work queue.
// All conversation state lives on the event loop and is only touched there.
package autoresponse

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/autoreply/internal/conversation"
	"github.com/edgard/autoreply/internal/logger"
	"github.com/edgard/autoreply/internal/openai"
	"github.com/edgard/autoreply/internal/settings"
)

// DefaultInterval is the time between ticks.
const DefaultInterval = 30 * time.Second

// Host is the messaging side the service reads from and sends to.
// Send and typing commands must not block on the network.
type Host interface {
	UnreadDialogs(ctx context.Context) ([]conversation.Dialog, error)
	// RecentMessages returns up to limit messages of chatID, newest last.
	RecentMessages(ctx context.Context, chatID int64, limit int) ([]conversation.Message, error)
	SendTyping(ctx context.Context, chatID int64) error
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Completer issues completion requests. *openai.Client satisfies it.
type Completer interface {
	CompleteAsync(ctx context.Context, req openai.CompletionRequest, cb openai.Callback)
}

// SettingsSource provides the current settings. *settings.Settings satisfies it.
type SettingsSource interface {
	Snapshot() settings.Snapshot
}

// Executor is the event loop. *loop.Loop satisfies it.
type Executor interface {
	Post(fn func())
	Call(ctx context.Context, fn func()) error
}

// Stats is a status summary.
type Stats struct {
	Running    bool   `json:"running"`
	Ticks      uint64 `json:"ticks"`
	Dispatched uint64 `json:"dispatched"`
	Sent       uint64 `json:"sent"`
	Failed     uint64 `json:"failed"`
	Tracked    int    `json:"tracked"`
	InFlight   int    `json:"in_flight"`
}

// Option configures a Service.
type Option func(*Service)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// Service is the auto-response scheduler.
type Service struct {
	host      Host
	completer Completer
	settings  SettingsSource
	loop      Executor
	logger    *slog.Logger
	interval  time.Duration

	// tracker is confined to the loop
	tracker *conversation.Tracker

	mu        sync.Mutex
	scheduler gocron.Scheduler

	running    atomic.Bool
	generation atomic.Uint64

	ticks      atomic.Uint64
	dispatched atomic.Uint64
	sent       atomic.Uint64
	failed     atomic.Uint64
}

// New creates a stopped Service.
func New(host Host, completer Completer, src SettingsSource, loop Executor, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		host:      host,
		completer: completer,
		settings:  src,
		loop:      loop,
		logger:    log.With("component", "auto_response"),
		interval:  DefaultInterval,
		tracker:   conversation.NewTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins ticking. The first tick runs immediately. Start is a no-op
// when already running or when no API token is configured.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}
	if s.settings.Snapshot().APIToken == "" {
		s.logger.InfoContext(ctx, "API token not set, auto-response stays stopped")
		return nil
	}

	sched, err := gocron.NewScheduler(
		gocron.WithLogger(logger.NewGocronLogger(s.logger)),
		gocron.WithLimitConcurrentJobs(1, gocron.LimitModeWait),
	)
	if err != nil {
		return fmt.Errorf("failed to create auto-response scheduler: %w", err)
	}

	gen := s.generation.Add(1)
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.tick, ctx, gen),
		gocron.WithName("auto_response_tick"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule auto-response tick: %w", err)
	}

	s.scheduler = sched
	s.running.Store(true)
	sched.Start()

	s.logger.InfoContext(ctx, "Auto-response started", "interval", s.interval)
	return nil
}

// Stop cancels future ticks and pending delayed sends and discards all
// conversation state. Completions already in flight are not cancelled; their
// callbacks are ignored.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.generation.Add(1)

	err := s.scheduler.Shutdown()
	s.scheduler = nil
	s.loop.Post(s.tracker.ClearAll)

	s.logger.Info("Auto-response stopped")
	if err != nil {
		return fmt.Errorf("failed to stop auto-response scheduler: %w", err)
	}
	return nil
}

// Running reports whether the service is started.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Enable makes sure chatID has tracked state.
func (s *Service) Enable(chatID int64) {
	s.loop.Post(func() { s.tracker.Enable(chatID) })
}

// Disable drops the tracked state of chatID, including its watermark.
func (s *Service) Disable(chatID int64) {
	s.loop.Post(func() { s.tracker.Disable(chatID) })
}

// Stats collects counters and tracker sizes.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Running:    s.running.Load(),
		Ticks:      s.ticks.Load(),
		Dispatched: s.dispatched.Load(),
		Sent:       s.sent.Load(),
		Failed:     s.failed.Load(),
	}
	err := s.loop.Call(ctx, func() {
		st.Tracked = s.tracker.Len()
		st.InFlight = s.tracker.InFlight()
	})
	return st, err
}

func (s *Service) current(gen uint64) bool {
	return s.running.Load() && s.generation.Load() == gen
}

type candidate struct {
	dialog   conversation.Dialog
	messages []conversation.Message
}

// tick runs on the scheduler goroutine. It reads from the host and hands
// the result to the loop for evaluation.
func (s *Service) tick(ctx context.Context, gen uint64) {
	if !s.current(gen) {
		return
	}
	snap := s.settings.Snapshot()
	if !snap.Enabled {
		return
	}
	s.ticks.Add(1)

	dialogs, err := s.host.UnreadDialogs(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list unread dialogs", "error", err)
		return
	}

	allow := snap.AllowList()
	dialogs = pie.Filter(dialogs, func(d conversation.Dialog) bool {
		return d.UnreadCount > 0 && allow.Allows(d.ID)
	})
	if len(dialogs) == 0 {
		return
	}

	batch := make([]candidate, 0, len(dialogs))
	for _, d := range dialogs {
		msgs, err := s.host.RecentMessages(ctx, d.ID, snap.ContextSize)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to read recent messages", "chat_id", d.ID, "error", err)
			continue
		}
		batch = append(batch, candidate{dialog: d, messages: msgs})
	}

	s.logger.DebugContext(ctx, "Auto-response tick", "candidates", len(batch))
	s.loop.Post(func() { s.evaluate(ctx, gen, snap, batch) })
}

func (s *Service) evaluate(ctx context.Context, gen uint64, snap settings.Snapshot, batch []candidate) {
	allow := snap.AllowList()
	for _, c := range batch {
		if !s.current(gen) {
			return
		}
		if !s.tracker.Eligible(c.dialog, allow) {
			continue
		}

		cc := s.tracker.GetOrCreate(c.dialog.ID)
		cc.RecentMessages = c.messages
		lines := conversation.ExtractWindow(cc.RecentMessages, cc.LastIncorporatedID, snap.ContextSize)
		cc.RecentMessages = nil
		if len(lines) == 0 {
			continue
		}

		var newest int64
		if n := len(c.messages); n > 0 {
			newest = c.messages[n-1].ID
		}

		cc.Processing = true
		s.dispatched.Add(1)
		s.dispatch(ctx, gen, cc, lines, newest, snap)
	}
}

func (s *Service) dispatch(ctx context.Context, gen uint64, cc *conversation.Context, lines []string, newest int64, snap settings.Snapshot) {
	req := openai.CompletionRequest{
		UserContent:  conversation.BuildPrompt(lines),
		SystemPrompt: conversation.SystemPrompt,
		Model:        snap.Model,
		Tier:         snap.ResponseSize,
	}

	s.logger.InfoContext(ctx, "Requesting auto-response", "chat_id", cc.ID, "lines", len(lines), "model", req.Model)
	s.completer.CompleteAsync(ctx, req, func(res openai.Result) {
		s.loop.Post(func() { s.onCompletion(ctx, gen, cc, res, newest, snap.TypingDelay) })
	})
}

func (s *Service) onCompletion(ctx context.Context, gen uint64, cc *conversation.Context, res openai.Result, newest int64, delay time.Duration) {
	if !s.owns(gen, cc) {
		s.logger.DebugContext(ctx, "Discarding stale completion", "chat_id", cc.ID)
		return
	}

	if res.Err != nil {
		cc.Processing = false
		s.failed.Add(1)
		s.logger.WarnContext(ctx, "Failed to generate auto-response", "chat_id", cc.ID, "error", res.Err)
		return
	}

	text := conversation.CleanReply(res.Text)
	if text == "" {
		cc.Processing = false
		return
	}

	if err := s.host.SendTyping(ctx, cc.ID); err != nil {
		s.logger.DebugContext(ctx, "Failed to send typing indicator", "chat_id", cc.ID, "error", err)
	}

	if err := s.scheduleSend(ctx, gen, cc, text, newest, delay); err != nil {
		cc.Processing = false
		s.failed.Add(1)
		s.logger.ErrorContext(ctx, "Failed to schedule auto-response", "chat_id", cc.ID, "error", err)
	}
}

func (s *Service) scheduleSend(ctx context.Context, gen uint64, cc *conversation.Context, text string, newest int64, delay time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scheduler == nil || !s.current(gen) {
		return fmt.Errorf("scheduler stopped")
	}

	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}

	chatID := cc.ID
	_, err := s.scheduler.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() { s.deliver(ctx, gen, cc, text, newest) }),
		gocron.WithName(fmt.Sprintf("auto_response_send_%d", chatID)),
	)
	return err
}

// deliver runs on the scheduler goroutine once the typing delay has elapsed.
func (s *Service) deliver(ctx context.Context, gen uint64, cc *conversation.Context, text string, newest int64) {
	latest := newest
	if msgs, err := s.host.RecentMessages(ctx, cc.ID, 1); err == nil && len(msgs) > 0 {
		latest = max(latest, msgs[len(msgs)-1].ID)
	}

	s.loop.Post(func() {
		if !s.owns(gen, cc) {
			return
		}

		if err := s.host.SendMessage(ctx, cc.ID, text); err != nil {
			cc.Processing = false
			s.failed.Add(1)
			s.logger.ErrorContext(ctx, "Failed to send auto-response", "chat_id", cc.ID, "error", err)
			return
		}

		cc.Advance(latest)
		cc.Processing = false
		s.sent.Add(1)
		s.logger.InfoContext(ctx, "Auto-response sent", "chat_id", cc.ID, "watermark", cc.LastIncorporatedID)
	})
}

// owns reports whether cc is still the live context of its chat in
// generation gen. Must run on the loop.
func (s *Service) owns(gen uint64, cc *conversation.Context) bool {
	if !s.current(gen) {
		return false
	}
	live, ok := s.tracker.Get(cc.ID)
	return ok && live == cc
}
