package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/localsonly/localsbot/internal/i18n"
)

// bundleFor resolves the message bundle for a command reply: the community
// language in group chats, the sender's language elsewhere.
func bundleFor(ctx context.Context, deps HandlerDeps, msg *models.Message) i18n.Bundle {
	lang := i18n.LangEN
	if msg.From != nil {
		lang = i18n.FromTelegramCode(msg.From.LanguageCode)
	}
	if msg.Chat.Type == models.ChatTypeGroup || msg.Chat.Type == models.ChatTypeSupergroup {
		if community, err := deps.Store.GetCommunityByChatID(ctx, msg.Chat.ID); err == nil && community != nil {
			lang = community.Language
		}
	}
	return i18n.Resolve(lang)
}

func sendText(ctx context.Context, b *bot.Bot, log *slog.Logger, chatID int64, text string) {
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send message", "chat_id", chatID, "error", err)
	}
}

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "start")
		msg := update.Message
		if msg == nil || msg.From == nil {
			return
		}
		log.InfoContext(ctx, "Handling /start command", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)

		bundle := bundleFor(ctx, deps, msg)
		key := i18n.KeyWelcome
		if msg.Chat.Type == models.ChatTypePrivate {
			if err := bootstrapPrivateUser(ctx, deps, msg); err != nil {
				log.ErrorContext(ctx, "Failed to bootstrap user", "user_id", msg.From.ID, "error", err)
				return
			}
			key = i18n.KeyPrivateWelcome
		}
		sendText(ctx, b, log, msg.Chat.ID, bundle.Get(key))
	}
}

// NewHelpHandler returns a handler for the /help command.
func NewHelpHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "help")
		msg := update.Message
		if msg == nil {
			return
		}

		bundle := bundleFor(ctx, deps, msg)
		key := i18n.KeyHelp
		if msg.Chat.Type == models.ChatTypePrivate {
			key = i18n.KeyPrivateHelp
		}
		sendText(ctx, b, log, msg.Chat.ID, bundle.Get(key))
	}
}

// NewAppHandler returns a handler for the /app command, sending the inline
// button that opens the community web app.
func NewAppHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", "app")
		msg := update.Message
		if msg == nil {
			return
		}

		bundle := bundleFor(ctx, deps, msg)
		if deps.Config.Telegram.WebAppLink == "" {
			log.WarnContext(ctx, "Web app link not configured")
			sendText(ctx, b, log, msg.Chat.ID, bundle.Get(i18n.KeyHelp))
			return
		}

		_, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   bundle.Get(i18n.KeyCommunityApp),
			ReplyMarkup: &models.InlineKeyboardMarkup{
				InlineKeyboard: [][]models.InlineKeyboardButton{{{
					Text: bundle.Get(i18n.KeyOpenWebApp),
					URL:  deps.Config.Telegram.WebAppLink,
				}}},
			},
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to send app link", "chat_id", msg.Chat.ID, "error", err)
		}
	}
}

// NewJoinHandler returns a handler for the /join command.
func NewJoinHandler(deps HandlerDeps) bot.HandlerFunc {
	return newChatRequestHandler(deps, "join", requestIDJoin)
}

// NewCreateHandler returns a handler for the /create command.
func NewCreateHandler(deps HandlerDeps) bot.HandlerFunc {
	return newChatRequestHandler(deps, "create", requestIDCreate)
}

// newChatRequestHandler asks the user to pick a group chat. The ChatShared
// reply carries the request identifier back to the message handler, which
// finishes the flow.
func newChatRequestHandler(deps HandlerDeps, name string, requestID int) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		log := deps.Logger.With("handler", name)
		msg := update.Message
		if msg == nil || msg.From == nil {
			return
		}

		if err := bootstrapPrivateUser(ctx, deps, msg); err != nil {
			log.ErrorContext(ctx, "Failed to bootstrap user", "user_id", msg.From.ID, "error", err)
			return
		}

		bundle := bundleFor(ctx, deps, msg)
		_, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   bundle.Get(i18n.KeySelectChat),
			ReplyMarkup: &models.ReplyKeyboardMarkup{
				ResizeKeyboard:  true,
				OneTimeKeyboard: true,
				Keyboard: [][]models.KeyboardButton{{{
					Text: bundle.Get(i18n.KeySelectChat),
					RequestChat: &models.KeyboardButtonRequestChat{
						RequestID:     int32(requestID),
						ChatIsChannel: false,
					},
				}}},
			},
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to send chat request", "chat_id", msg.Chat.ID, "error", err)
		}
	}
}
