// Package notify broadcasts freshly published entities to community members
// in rate-paced batches, keeping outbound traffic under the chat platform's
// flood-control ceiling.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/config"
	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/i18n"
	"github.com/localsonly/localsbot/internal/schema"
)

// Sender is the outbound messaging surface of the chat platform.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// Notifier fans a "new content" message out to all notifiable members of a
// community. Recipients are partitioned into fixed-size batches; messages
// within a batch go out back to back and a fixed pause separates batches, so
// small communities see zero delay.
type Notifier struct {
	store      database.Store
	sender     Sender
	webAppLink string
	batchSize  int
	batchPause time.Duration
	pause      func(time.Duration)
	log        *slog.Logger
}

// New creates a Notifier paced by cfg.
func New(store database.Store, sender Sender, cfg config.NotifyConfig, webAppLink string, log *slog.Logger) *Notifier {
	return &Notifier{
		store:      store,
		sender:     sender,
		webAppLink: webAppLink,
		batchSize:  cfg.BatchSize,
		batchPause: cfg.BatchPause,
		pause:      time.Sleep,
		log:        log.With("component", "notify"),
	}
}

// Announce schedules the fan-out for a published entity and returns
// immediately. The fan-out runs detached: it is not cancellable and not
// awaited, so acknowledging the inbound update never blocks on delivery.
// Entities without a source chat message are skipped.
func (n *Notifier) Announce(community *database.Community, kind schema.Kind, entity *database.Entity) {
	if entity == nil || entity.MessageID == 0 {
		return
	}
	go n.fanOut(context.Background(), community, kind, entity)
}

func (n *Notifier) fanOut(ctx context.Context, community *database.Community, kind schema.Kind, entity *database.Entity) {
	log := n.log.With("community_id", community.ID, "kind", kind, "entity_id", entity.ID)

	members, err := n.store.GetNotifiableMembers(ctx, community.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load notifiable members", "error", err)
		return
	}
	if len(members) == 0 {
		return
	}

	bundle := i18n.Resolve(community.Language)
	text := fmt.Sprintf("%s %s", bundle.Get(i18n.KeyNewContent), entity.Title)
	markup := n.entityLinkMarkup(bundle, kind, entity)

	sent := 0
	for start := 0; start < len(members); start += n.batchSize {
		if start > 0 {
			n.pause(n.batchPause)
		}
		for _, member := range members[start:min(start+n.batchSize, len(members))] {
			if _, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:      member.NotificationChatID.Int64,
				Text:        text,
				ReplyMarkup: markup,
			}); err != nil {
				log.WarnContext(ctx, "Failed to notify member", "user_id", member.ID, "error", err)
				continue
			}
			sent++
		}
	}
	log.InfoContext(ctx, "Fan-out finished", "recipients", len(members), "sent", sent)
}

// entityLinkMarkup builds the inline button opening the entity in the
// community web app. Nil when no web app link is configured.
func (n *Notifier) entityLinkMarkup(bundle i18n.Bundle, kind schema.Kind, entity *database.Entity) models.ReplyMarkup {
	if n.webAppLink == "" {
		return nil
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{{
			Text: bundle.Get(i18n.KeyOpenWebApp),
			URL:  fmt.Sprintf("%s/%s/%s", n.webAppLink, kind, entity.ID),
		}}},
	}
}
