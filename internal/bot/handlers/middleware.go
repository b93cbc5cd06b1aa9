package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/router"
)

// GroupBootstrap makes commands a first interaction like any other group
// message: the community is created in setup state when missing, and the
// non-anonymous sender is registered as a member. Bootstrap failures are
// logged and the command still runs.
func GroupBootstrap(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			msg := update.Message
			if msg != nil && (msg.Chat.Type == models.ChatTypeGroup || msg.Chat.Type == models.ChatTypeSupergroup) {
				community, _, err := ensureGroupCommunity(ctx, deps, msg)
				switch {
				case err != nil:
					deps.Logger.ErrorContext(ctx, "Failed to bootstrap community for command",
						"chat_id", msg.Chat.ID, "error", err)
				case msg.From != nil && !msg.From.IsBot && msg.From.Username != router.AnonymousAdminUsername:
					if err := deps.Store.AddMembership(ctx, msg.From.ID, community.ID); err != nil {
						deps.Logger.ErrorContext(ctx, "Failed to register command sender as member",
							"community_id", community.ID, "user_id", msg.From.ID, "error", err)
					}
				}
			}
			next(ctx, b, update)
		}
	}
}

// PrivateChatOnly drops command updates issued outside a private chat. The
// join/create flows rely on chat-request keyboards, which only work one on
// one with the bot.
func PrivateChatOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if update.Message == nil {
				return
			}
			if update.Message.Chat.Type != models.ChatTypePrivate {
				deps.Logger.DebugContext(ctx, "Ignoring private-only command in group chat",
					"chat_id", update.Message.Chat.ID)
				return
			}
			next(ctx, b, update)
		}
	}
}
