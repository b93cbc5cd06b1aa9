// Package tasks implements the scheduled maintenance tasks: database
// upkeep and the sweep of media groups no entity ever claimed.
package tasks

import (
	"log/slog"

	"github.com/localsonly/localsbot/internal/config"
	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/media"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Store   database.Store
	Objects media.ObjectStore
	Config  *config.Config
}
