// Package i18n provides per-language message bundles for text the bot sends
// into chats. A bundle is resolved once per handled update from the community
// language and falls back to English for unknown languages or missing keys.
package i18n

// Supported language codes.
const (
	LangEN = "en"
	LangRU = "ru"
)

// Message keys.
const (
	KeyWelcome           = "welcome"
	KeyHelp              = "help"
	KeyCommunityApp      = "community_app"
	KeyOpenWebApp        = "open_web_app"
	KeyNewContent        = "new_content"
	KeyPrivateWelcome    = "private_welcome"
	KeyPrivateHelp       = "private_help"
	KeySelectChat        = "please_select_chat"
	KeyCommunityNotFound = "community_not_found"
	KeyJoined            = "successfully_joined"
	KeyCommunityExists   = "community_already_exists"
	KeyCommunityCreated  = "community_created"
)

// Bundle resolves message keys for a single language.
type Bundle struct {
	lang     string
	messages map[string]string
}

var bundles = map[string]map[string]string{
	LangEN: {
		KeyWelcome:           "Welcome to the bot!",
		KeyHelp:              "Here are the available commands: /start, /help, /app",
		KeyCommunityApp:      "Community App",
		KeyOpenWebApp:        "Open",
		KeyNewContent:        "New post in your community:",
		KeyPrivateWelcome:    "Welcome to the private chat!",
		KeyPrivateHelp:       "Here are the available commands for private chat: /start, /help, /join, /create",
		KeySelectChat:        "Please select a chat:",
		KeyCommunityNotFound: "Community not found for the shared chat. Please create a new one using the /create command.",
		KeyJoined:            "You have successfully joined the community!",
		KeyCommunityExists:   "Community already exists for the shared chat.",
		KeyCommunityCreated:  "Community created successfully!",
	},
	LangRU: {
		KeyWelcome:           "Добро пожаловать в бота!",
		KeyHelp:              "Вот доступные команды: /start, /help, /app",
		KeyCommunityApp:      "Приложение Сообщества",
		KeyOpenWebApp:        "Открыть",
		KeyNewContent:        "Новая публикация в вашем сообществе:",
		KeyPrivateWelcome:    "Добро пожаловать в приватный чат!",
		KeyPrivateHelp:       "Вот доступные команды для приватного чата: /start, /help, /join, /create",
		KeySelectChat:        "Пожалуйста, выберите чат:",
		KeyCommunityNotFound: "Сообщество не найдено для указанного чата. Пожалуйста, создайте новое сообщество используя команду /create.",
		KeyJoined:            "Вы успешно присоединились к сообществу!",
		KeyCommunityExists:   "Сообщество уже существует для указанного чата.",
		KeyCommunityCreated:  "Сообщество успешно создано!",
	},
}

// Resolve returns the bundle for a language code, falling back to English.
func Resolve(lang string) Bundle {
	if _, ok := bundles[lang]; !ok {
		lang = LangEN
	}
	return Bundle{lang: lang, messages: bundles[lang]}
}

// Lang returns the resolved language code.
func (b Bundle) Lang() string { return b.lang }

// Get returns the message for a key, falling back to the English message.
func (b Bundle) Get(key string) string {
	if msg, ok := b.messages[key]; ok {
		return msg
	}
	return bundles[LangEN][key]
}

// DisplayName maps a language code to the display name used in extraction
// prompts.
func DisplayName(lang string) string {
	switch lang {
	case LangEN:
		return "English"
	case LangRU:
		return "Russian"
	default:
		return "English"
	}
}

// FromTelegramCode maps a Telegram user language code to a supported
// community language, defaulting to English.
func FromTelegramCode(code string) string {
	if len(code) >= 2 && code[:2] == LangRU {
		return LangRU
	}
	return LangEN
}
