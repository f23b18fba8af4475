// Package tasks implements the scheduled maintenance tasks of the bot.
package tasks

import (
	"log/slog"

	"github.com/edgard/autoreply/internal/config"
	"github.com/edgard/autoreply/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
}
