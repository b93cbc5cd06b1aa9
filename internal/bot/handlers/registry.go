package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler bundles everything needed to register one handler.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns the map of all bot commands.
// The catch-all message handler is registered separately as the bot's
// default handler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	commands := make(map[string]RegisteredHandler)

	// Commands usable in group chats count as a first interaction and must
	// bootstrap the community, same as the default message handler.
	groupBootstrap := []tgbot.Middleware{GroupBootstrap(deps)}

	commands["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  groupBootstrap,
	}
	commands["/help"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "help",
		Handler:     NewHelpHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  groupBootstrap,
	}
	commands["/app"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "app",
		Handler:     NewAppHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  groupBootstrap,
	}

	privateOnly := []tgbot.Middleware{PrivateChatOnly(deps)}

	commands["/join"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "join",
		Handler:     NewJoinHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  privateOnly,
	}
	commands["/create"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "create",
		Handler:     NewCreateHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  privateOnly,
	}

	return commands
}
