// Package ingest composes the hashtag routing result, the extraction
// adapter, the media correlator and the store into entity creation. It is
// the only producer of entities from chat traffic.
package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/extract"
	"github.com/localsonly/localsbot/internal/router"
	"github.com/localsonly/localsbot/internal/schema"
)

// AckReaction is the reaction set on a source message after its entity is
// persisted. Its absence is the implicit failure signal; no error message is
// ever sent back into the chat.
const AckReaction = "⚡"

// Seeder creates a media group for a message carrying its own image. A media
// correlator satisfies this.
type Seeder interface {
	Seed(ctx context.Context, communityID string, msg *models.Message) (string, error)
}

// Announcer fans out a notification for a freshly created entity. It must
// not block; fan-out runs off the ingestion path.
type Announcer interface {
	Announce(community *database.Community, kind schema.Kind, entity *database.Entity)
}

// Reactor sets acknowledgement reactions on chat messages.
type Reactor interface {
	SetMessageReaction(ctx context.Context, params *bot.SetMessageReactionParams) (bool, error)
}

// Ingestor turns qualifying messages into persisted entities.
type Ingestor struct {
	store     database.Store
	registry  *schema.Registry
	extractor extract.Client
	seeder    Seeder
	announcer Announcer
	reactor   Reactor
	log       *slog.Logger
}

// New creates an Ingestor. announcer and reactor may be nil in contexts that
// have no chat platform attached (tests, backfills).
func New(store database.Store, registry *schema.Registry, extractor extract.Client, seeder Seeder, announcer Announcer, reactor Reactor, log *slog.Logger) *Ingestor {
	return &Ingestor{
		store:     store,
		registry:  registry,
		extractor: extractor,
		seeder:    seeder,
		announcer: announcer,
		reactor:   reactor,
		log:       log.With("component", "ingest"),
	}
}

// Ingest runs the full pipeline for a message the router already matched.
// Every failure is logged and swallowed: a malformed message must never take
// down processing of subsequent messages, and the chat message itself is
// never edited or deleted. The store is written only after extraction has
// fully succeeded, so a failure degrades to "nothing published," never to a
// partial record.
func (i *Ingestor) Ingest(ctx context.Context, community *database.Community, msg *models.Message, kind schema.Kind, hashtag string) {
	log := i.log.With("community_id", community.ID, "kind", kind, "message_id", msg.ID)

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	categories, err := i.store.DistinctCategories(ctx, kind, community.ID)
	if err != nil {
		log.WarnContext(ctx, "Failed to load existing categories", "error", err)
		categories = nil
	}

	extracted, err := i.extractor.Extract(ctx, extract.Request{
		Text:          router.StripHashtag(text, hashtag),
		Kind:          kind,
		Categories:    categories,
		CommunityName: community.Name,
		Language:      community.Language,
	})
	if err != nil {
		log.ErrorContext(ctx, "Extraction call failed", "error", err)
		return
	}
	if extracted == nil {
		log.InfoContext(ctx, "No extraction, nothing to publish")
		return
	}

	groupID := ""
	if i.seeder != nil {
		groupID, err = i.seeder.Seed(ctx, community.ID, msg)
		if err != nil {
			log.ErrorContext(ctx, "Failed to persist message media", "error", err)
			groupID = ""
		}
	}

	fields, err := i.registry.Fields(kind)
	if err != nil {
		log.ErrorContext(ctx, "Unknown content kind", "error", err)
		return
	}

	values := fillFields(fields, extracted, msg, community.ID, groupID)
	entity := buildEntity(kind, values)

	if err := i.store.CreateEntity(ctx, kind, entity); err != nil {
		log.ErrorContext(ctx, "Failed to persist entity", "error", err)
		return
	}
	log.InfoContext(ctx, "Entity published",
		"entity_id", entity.ID, "title", entity.Title, "category", entity.Category)

	i.acknowledge(ctx, msg)

	if i.announcer != nil {
		i.announcer.Announce(community, kind, entity)
	}
}

func (i *Ingestor) acknowledge(ctx context.Context, msg *models.Message) {
	if i.reactor == nil {
		return
	}
	ok, err := i.reactor.SetMessageReaction(ctx, &bot.SetMessageReactionParams{
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Reaction: []models.ReactionType{{
			Type: models.ReactionTypeTypeEmoji,
			ReactionTypeEmoji: &models.ReactionTypeEmoji{
				Type:  models.ReactionTypeTypeEmoji,
				Emoji: AckReaction,
			},
		}},
	})
	if err != nil || !ok {
		i.log.WarnContext(ctx, "Failed to set acknowledgement reaction",
			"chat_id", msg.Chat.ID, "message_id", msg.ID, "error", err)
	}
}

// fillFields completes the extraction result. Missing fields are filled from
// the source message for identity fields, then from the schema's default
// supplier for everything else. Default suppliers run once per missing
// field, at fill time.
func fillFields(fields []schema.Field, extracted extract.Fields, msg *models.Message, communityID, groupID string) map[string]any {
	values := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := extracted[f.Name]; ok {
			values[f.Name] = v
			continue
		}
		if v, ok := identityValue(f.Name, msg, communityID, groupID); ok {
			values[f.Name] = v
			continue
		}
		values[f.Name] = f.Default()
	}
	return values
}

func identityValue(name string, msg *models.Message, communityID, groupID string) (any, bool) {
	switch name {
	case schema.FieldAuthor:
		if msg.From == nil {
			return nil, false
		}
		return strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName), true
	case schema.FieldUserID:
		if msg.From == nil {
			return nil, false
		}
		return msg.From.ID, true
	case schema.FieldCommunityID:
		return communityID, true
	case schema.FieldMessageID:
		return int64(msg.ID), true
	case schema.FieldMediaGroupID:
		if groupID == "" {
			return nil, false
		}
		return groupID, true
	}
	return nil, false
}

func buildEntity(kind schema.Kind, values map[string]any) *database.Entity {
	entity := &database.Entity{
		ID:          uuid.NewString(),
		Title:       asString(values[schema.FieldTitle]),
		Category:    asString(values[schema.FieldCategory]),
		Description: asString(values[schema.FieldDescription]),
		Author:      asString(values[schema.FieldAuthor]),
		UserID:      asInt64(values[schema.FieldUserID]),
		CommunityID: asString(values[schema.FieldCommunityID]),
		MessageID:   asInt64(values[schema.FieldMessageID]),
		PublishedAt: asTime(values[schema.FieldPublishedAt]),
	}
	if groupID := asString(values[schema.FieldMediaGroupID]); groupID != "" {
		entity.MediaGroupID = sql.NullString{String: groupID, Valid: true}
	}

	switch kind {
	case schema.KindItem, schema.KindService:
		entity.Price = sql.NullFloat64{Float64: asFloat(values[schema.FieldPrice]), Valid: true}
		if currency := asString(values[schema.FieldCurrency]); currency != "" {
			entity.Currency = sql.NullString{String: currency, Valid: true}
		}
	case schema.KindEvent:
		if occursAt := asTime(values[schema.FieldDate]); !occursAt.IsZero() {
			entity.OccursAt = sql.NullTime{Time: occursAt, Valid: true}
		}
	}
	return entity
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func asTime(v any) time.Time {
	t, _ := v.(time.Time)
	return t
}
