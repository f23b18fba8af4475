// Package loop provides the single execution context that owns all mutable
// conversation state. Functions posted to a Loop run one at a time, in post
// order, on the goroutine that called Run.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Loop serializes posted functions.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	logger  *slog.Logger
}

// New creates a Loop. Nothing runs until Run is called.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: logger.With("component", "loop"),
	}
}

// Post schedules fn and returns immediately. It is safe to call from any
// goroutine, including from inside a posted function. Functions posted after
// Run returns are never executed.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call posts fn and waits for it to finish or for ctx to end.
// It must not be called from inside a posted function.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Event loop started")
	defer l.logger.Info("Event loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
			l.drain(ctx)
		}
	}
}

func (l *Loop) drain(ctx context.Context) {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			if err := l.execute(fn); err != nil {
				l.logger.ErrorContext(ctx, "Posted function panicked", "error", err)
			}
		}
	}
}

func (l *Loop) execute(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	fn()
	return nil
}
