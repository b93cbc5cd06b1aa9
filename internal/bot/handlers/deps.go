// Package handlers contains the Telegram update handlers: the catch-all
// message handler feeding the ingestion pipeline, the command handlers, and
// their registration logic.
package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/config"
	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/router"
	"github.com/localsonly/localsbot/internal/schema"
)

// MessageRouter matches a group message against its community's hashtags.
type MessageRouter interface {
	Route(ctx context.Context, community *database.Community, msg *models.Message) (*router.Match, error)
}

// Orchestrator runs the ingestion pipeline for a routed message.
type Orchestrator interface {
	Ingest(ctx context.Context, community *database.Community, msg *models.Message, kind schema.Kind, hashtag string)
}

// FragmentHandler processes trailing media-group image messages.
type FragmentHandler interface {
	HandleFragment(ctx context.Context, msg *models.Message) error
}

// HandlerDeps provides dependencies for Telegram update handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      database.Store
	Router     MessageRouter
	Ingestor   Orchestrator
	Correlator FragmentHandler
}
