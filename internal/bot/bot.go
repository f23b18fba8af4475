// Package bot orchestrates the lifecycle of every long-running component:
// the event loop, the work queue, the Telegram listener, the maintenance
// scheduler, the auto-response service and the status server.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/autoreply/internal/autoresponse"
	"github.com/edgard/autoreply/internal/loop"
	"github.com/edgard/autoreply/internal/server"
	"github.com/edgard/autoreply/internal/settings"
	"github.com/edgard/autoreply/internal/summarize"
	"github.com/edgard/autoreply/internal/workqueue"
)

// Listener receives Telegram updates until ctx is cancelled. *bot.Bot satisfies it.
type Listener interface {
	Start(ctx context.Context)
}

// Components are the parts the orchestrator runs. Server may be nil.
type Components struct {
	Listener     Listener
	Loop         *loop.Loop
	Queue        *workqueue.Queue
	Scheduler    *Scheduler
	AutoResponse *autoresponse.Service
	Settings     *settings.Settings
	Summarizer   *summarize.Service
	Server       *server.Server
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger *slog.Logger
	c      Components
}

// NewBot creates an orchestrator for the given components.
func NewBot(logger *slog.Logger, c Components) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		logger: logger.With("component", "bot_orchestrator"),
		c:      c,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.c.Loop.Run(gCtx) })
	g.Go(func() error { return b.c.Queue.Run(gCtx) })

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")
		b.c.Listener.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		if err := b.c.Scheduler.Start(gCtx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")
		if err := b.c.Scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	g.Go(func() error { return b.runAutoResponse(gCtx) })

	if b.c.Server != nil {
		g.Go(func() error { return b.c.Server.Run(gCtx) })
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

// runAutoResponse starts the service, restarts it whenever the API token
// changes and stops it on shutdown.
func (b *Bot) runAutoResponse(ctx context.Context) error {
	b.c.Settings.OnChange(b.c.Summarizer.HandleSettingsChange)
	b.c.Settings.OnChange(func(changed []settings.Key) {
		if slices.Contains(changed, settings.KeyToken) && ctx.Err() == nil {
			b.restartAutoResponse(ctx)
		}
	})

	if err := b.c.AutoResponse.Start(ctx); err != nil {
		return fmt.Errorf("failed to start auto-response: %w", err)
	}

	<-ctx.Done()
	if err := b.c.AutoResponse.Stop(); err != nil {
		b.logger.Error("Error stopping auto-response", "error", err)
	}
	return nil
}

func (b *Bot) restartAutoResponse(ctx context.Context) {
	b.logger.InfoContext(ctx, "API token changed, restarting auto-response")
	if err := b.c.AutoResponse.Stop(); err != nil {
		b.logger.ErrorContext(ctx, "Error stopping auto-response", "error", err)
	}
	if err := b.c.AutoResponse.Start(ctx); err != nil {
		b.logger.ErrorContext(ctx, "Failed to restart auto-response", "error", err)
	}
}
