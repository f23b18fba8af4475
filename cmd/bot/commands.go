package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/do"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edgard/autoreply/internal/bot"
	"github.com/edgard/autoreply/internal/config"
	"github.com/edgard/autoreply/internal/database"
	"github.com/edgard/autoreply/internal/logger"
	"github.com/edgard/autoreply/internal/openai"
	"github.com/edgard/autoreply/internal/workqueue"
)

const defaultConfigPath = "./config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "autoreply",
		Short:         "Telegram bot that replies to conversations and summarizes voice messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBot(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBot(cmd.Context(), configPath)
			},
		},
		newTestConnectionCmd(&configPath),
		newTranscribeCmd(&configPath),
		newConfigCmd(&configPath),
	)

	return root
}

func newTestConnectionCmd(configPath *string) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "test-connection",
		Short: "Check that the OpenAI API is reachable with the configured or given key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCore(cmd.Context(), *configPath, func(di *do.Injector) error {
				report, err := do.MustInvoke[*openai.Client](di).TestConnection(cmd.Context(), key)
				if err != nil {
					return err
				}
				cmd.Printf("%s\nModel: %s\nResponse time: %s\n", report.Message, report.Model, report.ResponseTime.Round(time.Millisecond))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "API key to test instead of the configured one")
	return cmd
}

func newTranscribeCmd(configPath *string) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe an audio file with Whisper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd.Context(), *configPath, func(di *do.Injector) error {
				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()
				go func() { _ = do.MustInvoke[*workqueue.Queue](di).Run(ctx) }()

				done := make(chan openai.Result, 1)
				do.MustInvoke[*openai.Client](di).Transcribe(ctx, args[0], language, func(r openai.Result) { done <- r })

				select {
				case r := <-done:
					if r.Err != nil {
						return r.Err
					}
					cmd.Println(r.Text)
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "Two-letter language hint, e.g. en")
	return cmd
}

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return fmt.Errorf("failed to encode config: %w", err)
			}
			cmd.Print(string(out))
			return nil
		},
	})
	return cmd
}

// setup loads the config, builds the logger and the injector. The returned
// cleanup closes the database and shuts the injector down.
func setup(ctx context.Context, configPath string) (*do.Injector, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		return nil, nil, err
	}

	log := logger.New(cfg.Logger)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	di := do.New()
	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)
	do.ProvideValue(di, log)

	cleanup := func() {
		if err := di.Shutdown(); err != nil {
			log.Warn("Error shutting down services", "error", err)
		}
	}
	return di, cleanup, nil
}

// openDB builds the database eagerly so that it is closed on every exit path.
func openDB(di *do.Injector) (func(), error) {
	db, err := do.Invoke[*sqlx.DB](di)
	if err != nil {
		return nil, err
	}
	return func() { database.CloseDB(db) }, nil
}

func withCore(ctx context.Context, configPath string, fn func(di *do.Injector) error) error {
	di, cleanup, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	provideCore(di)
	closeDB, err := openDB(di)
	if err != nil {
		return err
	}
	defer closeDB()

	return fn(di)
}

func runBot(ctx context.Context, configPath string) error {
	di, cleanup, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	provideBot(di)
	log := do.MustInvoke[*slog.Logger](di)

	closeDB, err := openDB(di)
	if err != nil {
		log.Error("Failed to open database", "error", err)
		return err
	}
	defer closeDB()

	app, err := do.Invoke[*bot.Bot](di)
	if err != nil {
		log.Error("Failed to initialize bot", "error", err)
		return err
	}

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		return runErr
	}

	log.Info("Bot stopped gracefully.")
	return nil
}
