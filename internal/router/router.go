// Package router decides whether an inbound group message starts an
// ingestion: it matches community-configured hashtags against the message
// text, resolves the target content kind, and checks sender eligibility.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/schema"
)

// AnonymousAdminUsername is the platform's proxy identity for admins posting
// anonymously. Content cannot be attributed to it, so its messages are
// ignored.
const AnonymousAdminUsername = "GroupAnonymousBot"

var hashtagPattern = regexp.MustCompile(`#\w+`)

// Match is the routing outcome for a qualifying message.
type Match struct {
	Kind    schema.Kind
	Hashtag string // the matched literal, with leading '#'
}

// Router routes hashtag messages to content kinds.
type Router struct {
	store database.Store
	log   *slog.Logger
}

// New creates a Router backed by the given store.
func New(store database.Store, log *slog.Logger) *Router {
	return &Router{
		store: store,
		log:   log.With("component", "hashtag_router"),
	}
}

// Route inspects a message against its community. It returns nil when the
// message should be ignored: community not READY, ineligible sender, or no
// configured hashtag in the text. None of these are errors; unmatched chat
// traffic is the overwhelmingly common case.
//
// On a match the sending user is registered as a community member before the
// match is returned; content is only ever attributed to members.
func (r *Router) Route(ctx context.Context, community *database.Community, msg *models.Message) (*Match, error) {
	if community == nil || msg == nil || msg.From == nil {
		return nil, nil
	}

	if community.Status != database.StatusReady {
		r.log.DebugContext(ctx, "Community not ready, ignoring message",
			"community_id", community.ID, "status", community.Status)
		return nil, nil
	}

	if msg.From.IsBot || msg.From.Username == AnonymousAdminUsername {
		r.log.DebugContext(ctx, "Ineligible sender, ignoring message",
			"username", msg.From.Username, "is_bot", msg.From.IsBot)
		return nil, nil
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	kind, hashtag, ok := FindHashtag(text, community.Hashtags())
	if !ok {
		return nil, nil
	}

	if err := r.store.AddMembership(ctx, msg.From.ID, community.ID); err != nil {
		return nil, fmt.Errorf("failed to register sender as member: %w", err)
	}

	r.log.InfoContext(ctx, "Hashtag matched",
		"community_id", community.ID, "kind", kind, "hashtag", hashtag, "user_id", msg.From.ID)
	return &Match{Kind: kind, Hashtag: hashtag}, nil
}

// FindHashtag scans text for hashtags and returns the first one that matches
// a configured hashtag, together with its content kind. Matching is
// case-insensitive; the returned literal is the configured form.
func FindHashtag(text string, configured map[schema.Kind]string) (schema.Kind, string, bool) {
	if text == "" || !strings.Contains(text, "#") {
		return "", "", false
	}

	byTag := make(map[string]schema.Kind, len(configured))
	for kind, tag := range configured {
		if tag != "" {
			byTag[strings.ToLower(tag)] = kind
		}
	}

	for _, found := range hashtagPattern.FindAllString(strings.ToLower(text), -1) {
		if kind, ok := byTag[found]; ok {
			return kind, configured[kind], true
		}
	}
	return "", "", false
}

// StripHashtag removes the matched hashtag literal from the message text.
func StripHashtag(text, hashtag string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(hashtag))
	if idx < 0 {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:idx] + text[idx+len(hashtag):])
}
