package handlers

import (
	tgbot "github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its middleware.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands returns every command and callback handler keyed by name.
// The message recorder is not included: it is installed as the bot's default handler.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	command := func(name string, h tgbot.HandlerFunc, mw ...tgbot.Middleware) {
		handlers["/"+name] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeMessageText,
			Pattern:     name,
			Handler:     h,
			MatchType:   tgbot.MatchTypeCommandStartOnly,
			Middleware:  mw,
		}
	}

	command("start", NewStartHandler(deps))
	command("help", NewHelpHandler(deps))
	command("summarize", NewSummarizeHandler(deps))

	handlers[regenerateCallbackPrefix] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     regenerateCallbackPrefix,
		Handler:     NewRegenerateHandler(deps),
		MatchType:   tgbot.MatchTypePrefix,
	}

	adminOnly := AdminOnly(deps)

	command("ai_status", NewStatusHandler(deps), adminOnly)
	command("ai_set", NewSetHandler(deps), adminOnly)
	command("ai_enable", NewToggleHandler(deps, true), adminOnly)
	command("ai_disable", NewToggleHandler(deps, false), adminOnly)
	command("ai_test", NewTestHandler(deps), adminOnly)
	command("ai_reset", NewResetHandler(deps), adminOnly)

	return handlers
}
