package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	tgbot "github.com/go-telegram/bot"
	"github.com/jmoiron/sqlx"
	"github.com/samber/do"

	"github.com/edgard/autoreply/internal/autoresponse"
	"github.com/edgard/autoreply/internal/bot"
	"github.com/edgard/autoreply/internal/bot/handlers"
	"github.com/edgard/autoreply/internal/bot/tasks"
	"github.com/edgard/autoreply/internal/config"
	"github.com/edgard/autoreply/internal/database"
	"github.com/edgard/autoreply/internal/logger"
	"github.com/edgard/autoreply/internal/loop"
	"github.com/edgard/autoreply/internal/openai"
	"github.com/edgard/autoreply/internal/server"
	"github.com/edgard/autoreply/internal/settings"
	"github.com/edgard/autoreply/internal/summarize"
	"github.com/edgard/autoreply/internal/telegram"
	"github.com/edgard/autoreply/internal/workqueue"
)

const queueCapacity = 256

// provideCore registers everything the CLI subcommands share: storage,
// settings, the event loop, the work queue and the OpenAI client.
func provideCore(di *do.Injector) {
	do.Provide(di, newDB)
	do.Provide(di, newStore)
	do.Provide(di, newSettings)
	do.Provide(di, newLoop)
	do.Provide(di, newQueue)
	do.Provide(di, newOpenAI)
}

// provideBot registers the Telegram side and the orchestrator on top of provideCore.
func provideBot(di *do.Injector) {
	provideCore(di)
	do.Provide(di, newTelegramBot)
	do.Provide(di, newHost)
	do.Provide(di, newVoiceFetcher)
	do.Provide(di, newAutoResponse)
	do.Provide(di, newSummarizer)
	do.Provide(di, newScheduler)
	do.Provide(di, newStatusServer)
	do.Provide(di, newOrchestrator)
}

func newDB(di *do.Injector) (*sqlx.DB, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return database.NewDB(cfg.Database.Path)
}

func newStore(di *do.Injector) (database.Store, error) {
	return database.NewStore(do.MustInvoke[*sqlx.DB](di), do.MustInvoke[*slog.Logger](di)), nil
}

func newSettings(di *do.Injector) (*settings.Settings, error) {
	cfg := do.MustInvoke[*config.Config](di)
	st := settings.New(cfg.AI, cfg.Voice, do.MustInvoke[database.Store](di), do.MustInvoke[*slog.Logger](di))
	if err := st.Load(do.MustInvoke[context.Context](di)); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return st, nil
}

func newLoop(di *do.Injector) (*loop.Loop, error) {
	return loop.New(do.MustInvoke[*slog.Logger](di)), nil
}

func newQueue(di *do.Injector) (*workqueue.Queue, error) {
	cfg := do.MustInvoke[*config.Config](di)
	return workqueue.New(cfg.AI.Workers, queueCapacity, do.MustInvoke[*slog.Logger](di)), nil
}

func newOpenAI(di *do.Injector) (*openai.Client, error) {
	cfg := do.MustInvoke[*config.Config](di)
	st := do.MustInvoke[*settings.Settings](di)
	return openai.New(cfg.AI.BaseURL, st.Token, do.MustInvoke[*slog.Logger](di),
		openai.WithDispatcher(do.MustInvoke[*workqueue.Queue](di)),
	), nil
}

func newTelegramBot(di *do.Injector) (*tgbot.Bot, error) {
	ctx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)
	log := do.MustInvoke[*slog.Logger](di)

	recorder := handlers.NewRecordHandler(handlers.HandlerDeps{Logger: log, Store: do.MustInvoke[database.Store](di)})
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log,
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(recorder),
	)
	if err != nil {
		return nil, err
	}

	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)
	return tg, nil
}

func newHost(di *do.Injector) (*telegram.Host, error) {
	cfg := do.MustInvoke[*config.Config](di)
	tg := do.MustInvoke[*tgbot.Bot](di)
	return telegram.NewHost(tg, do.MustInvoke[database.Store](di), do.MustInvoke[*workqueue.Queue](di),
		cfg.Telegram.BotInfo.ID, do.MustInvoke[*slog.Logger](di)), nil
}

func newVoiceFetcher(di *do.Injector) (*telegram.VoiceFetcher, error) {
	return telegram.NewVoiceFetcher(do.MustInvoke[*tgbot.Bot](di), &http.Client{}, "", do.MustInvoke[*slog.Logger](di)), nil
}

func newAutoResponse(di *do.Injector) (*autoresponse.Service, error) {
	return autoresponse.New(
		do.MustInvoke[*telegram.Host](di),
		do.MustInvoke[*openai.Client](di),
		do.MustInvoke[*settings.Settings](di),
		do.MustInvoke[*loop.Loop](di),
		do.MustInvoke[*slog.Logger](di),
	), nil
}

func newSummarizer(di *do.Injector) (*summarize.Service, error) {
	client := do.MustInvoke[*openai.Client](di)
	return summarize.New(
		client,
		client,
		do.MustInvoke[*settings.Settings](di),
		do.MustInvoke[*loop.Loop](di),
		do.MustInvoke[*workqueue.Queue](di),
		do.MustInvoke[*slog.Logger](di),
	), nil
}

func newScheduler(di *do.Injector) (*bot.Scheduler, error) {
	cfg := do.MustInvoke[*config.Config](di)
	log := do.MustInvoke[*slog.Logger](di)
	taskMap := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger: log,
		Store:  do.MustInvoke[database.Store](di),
		Config: cfg,
	})
	return bot.NewScheduler(log, &cfg.Scheduler, taskMap)
}

func newStatusServer(di *do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[*config.Config](di)
	if cfg.Server.Addr == "" {
		return nil, nil
	}
	handler := server.NewHandler(
		do.MustInvoke[*autoresponse.Service](di),
		do.MustInvoke[database.Store](di),
		do.MustInvoke[*summarize.Service](di),
	)
	return server.New(cfg.Server.Addr, handler, do.MustInvoke[*slog.Logger](di)), nil
}

func newOrchestrator(di *do.Injector) (*bot.Bot, error) {
	cfg := do.MustInvoke[*config.Config](di)
	log := do.MustInvoke[*slog.Logger](di)
	tg := do.MustInvoke[*tgbot.Bot](di)

	hDeps := handlers.HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        do.MustInvoke[database.Store](di),
		Settings:     do.MustInvoke[*settings.Settings](di),
		AutoResponse: do.MustInvoke[*autoresponse.Service](di),
		Summarizer:   do.MustInvoke[*summarize.Service](di),
		AI:           do.MustInvoke[*openai.Client](di),
		Voice:        do.MustInvoke[*telegram.VoiceFetcher](di),
	}
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		return nil, fmt.Errorf("failed to register Telegram handlers: %w", err)
	}

	return bot.NewBot(log, bot.Components{
		Listener:     tg,
		Loop:         do.MustInvoke[*loop.Loop](di),
		Queue:        do.MustInvoke[*workqueue.Queue](di),
		Scheduler:    do.MustInvoke[*bot.Scheduler](di),
		AutoResponse: do.MustInvoke[*autoresponse.Service](di),
		Settings:     do.MustInvoke[*settings.Settings](di),
		Summarizer:   do.MustInvoke[*summarize.Service](di),
		Server:       do.MustInvoke[*server.Server](di),
	}), nil
}
