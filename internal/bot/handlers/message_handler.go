package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/database"
	"github.com/localsonly/localsbot/internal/i18n"
)

// Chat-selection request identifiers, echoed back in ChatShared replies.
const (
	requestIDJoin   = 1
	requestIDCreate = 2
)

// NewMessageHandler returns the catch-all handler for updates no command
// handler claimed. Group messages feed the ingestion pipeline; private
// messages drive user bootstrap and the join/create flows.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

type messageHandler struct {
	deps HandlerDeps
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	switch msg.Chat.Type {
	case models.ChatTypeGroup, models.ChatTypeSupergroup:
		h.handleGroup(ctx, msg)
	case models.ChatTypePrivate:
		h.handlePrivate(ctx, b, msg)
	}
}

// handleGroup is the single inbound entry point for community chat traffic.
// Failures here are logged and swallowed; nothing is ever sent back into the
// group for an ingestion failure.
func (h messageHandler) handleGroup(ctx context.Context, msg *models.Message) {
	log := h.deps.Logger.With("handler", "group_message", "chat_id", msg.Chat.ID)

	community, created, err := ensureGroupCommunity(ctx, h.deps, msg)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve community", "error", err)
		return
	}
	if created {
		return
	}

	match, err := h.deps.Router.Route(ctx, community, msg)
	if err != nil {
		log.ErrorContext(ctx, "Failed to route message", "error", err)
		return
	}
	if match != nil {
		h.deps.Ingestor.Ingest(ctx, community, msg, match.Kind, match.Hashtag)
		return
	}

	// Unmatched messages may still be trailing fragments of an album whose
	// caption message already created a media group.
	if msg.MediaGroupID != "" {
		if err := h.deps.Correlator.HandleFragment(ctx, msg); err != nil {
			log.ErrorContext(ctx, "Failed to handle media fragment",
				"media_group_id", msg.MediaGroupID, "error", err)
		}
	}
}

func (h messageHandler) handlePrivate(ctx context.Context, b *bot.Bot, msg *models.Message) {
	log := h.deps.Logger.With("handler", "private_message", "chat_id", msg.Chat.ID)
	if msg.From == nil {
		return
	}

	if err := bootstrapPrivateUser(ctx, h.deps, msg); err != nil {
		log.ErrorContext(ctx, "Failed to bootstrap user", "user_id", msg.From.ID, "error", err)
		return
	}

	if msg.ChatShared != nil {
		h.handleChatShared(ctx, b, msg)
		return
	}

	bundle := i18n.Resolve(i18n.FromTelegramCode(msg.From.LanguageCode))
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   bundle.Get(i18n.KeyPrivateHelp),
	}); err != nil {
		log.ErrorContext(ctx, "Failed to send private help", "error", err)
	}
}

// handleChatShared completes a /join or /create flow after the user picked a
// group chat from the request keyboard.
func (h messageHandler) handleChatShared(ctx context.Context, b *bot.Bot, msg *models.Message) {
	log := h.deps.Logger.With("handler", "chat_shared", "user_id", msg.From.ID)
	bundle := i18n.Resolve(i18n.FromTelegramCode(msg.From.LanguageCode))
	sharedChatID := msg.ChatShared.ChatID

	community, err := h.deps.Store.GetCommunityByChatID(ctx, sharedChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up shared chat community", "error", err)
		return
	}

	var reply string
	switch msg.ChatShared.RequestID {
	case requestIDJoin:
		if community == nil {
			reply = bundle.Get(i18n.KeyCommunityNotFound)
			break
		}
		if err := h.deps.Store.AddMembership(ctx, msg.From.ID, community.ID); err != nil {
			log.ErrorContext(ctx, "Failed to join community", "community_id", community.ID, "error", err)
			return
		}
		reply = bundle.Get(i18n.KeyJoined)

	case requestIDCreate:
		reply, err = h.createCommunity(ctx, bundle, community, sharedChatID, msg.From.ID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to create community", "shared_chat_id", sharedChatID, "error", err)
			return
		}

	default:
		log.WarnContext(ctx, "Unknown chat-shared request", "request_id", msg.ChatShared.RequestID)
		return
	}

	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: reply}); err != nil {
		log.ErrorContext(ctx, "Failed to send chat-shared reply", "error", err)
	}
}

// createCommunity runs the one-time setup operation. A community already in
// READY state stays untouched; one still in SETUP (bootstrapped by group
// traffic) is promoted. The creator joins as the first member.
func (h messageHandler) createCommunity(ctx context.Context, bundle i18n.Bundle, community *database.Community, sharedChatID, userID int64) (string, error) {
	if community == nil {
		created, err := h.deps.Store.CreateCommunity(ctx, sharedChatID, "", bundle.Lang())
		if err != nil {
			return "", err
		}
		community = created
	}
	if community.Status == database.StatusReady {
		return bundle.Get(i18n.KeyCommunityExists), nil
	}

	if err := h.deps.Store.MarkCommunityReady(ctx, community.ID); err != nil {
		if errors.Is(err, database.ErrCommunityNotSetup) {
			return bundle.Get(i18n.KeyCommunityExists), nil
		}
		return "", err
	}
	if err := h.deps.Store.AddMembership(ctx, userID, community.ID); err != nil {
		return "", err
	}
	return bundle.Get(i18n.KeyCommunityCreated), nil
}

// ensureGroupCommunity resolves the community bound to a group chat,
// creating it in setup state on the first interaction with the bot. The
// second return reports whether this call created it.
func ensureGroupCommunity(ctx context.Context, deps HandlerDeps, msg *models.Message) (*database.Community, bool, error) {
	community, err := deps.Store.GetCommunityByChatID(ctx, msg.Chat.ID)
	if err != nil {
		return nil, false, err
	}
	if community != nil {
		return community, false, nil
	}

	language := i18n.LangEN
	if msg.From != nil {
		language = i18n.FromTelegramCode(msg.From.LanguageCode)
	}
	community, err = deps.Store.CreateCommunity(ctx, msg.Chat.ID, msg.Chat.Title, language)
	if err != nil {
		return nil, false, err
	}
	deps.Logger.InfoContext(ctx, "Community bootstrapped in setup state",
		"chat_id", msg.Chat.ID, "name", msg.Chat.Title, "language", language)
	return community, true, nil
}

// bootstrapPrivateUser ensures the sender exists and binds this private chat
// as their notification channel. Both operations are idempotent.
func bootstrapPrivateUser(ctx context.Context, deps HandlerDeps, msg *models.Message) error {
	if err := deps.Store.EnsureUser(ctx, msg.From.ID); err != nil {
		return err
	}
	return deps.Store.BindNotificationChannel(ctx, msg.From.ID, msg.Chat.ID)
}
