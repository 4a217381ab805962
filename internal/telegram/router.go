package telegram

import (
	"strconv"
	"strings"

	"github.com/visagelab/visagebot/internal/session"
)

// UpdateKind classifies an incoming Telegram update for routing.
type UpdateKind int

const (
	KindCommand UpdateKind = iota
	KindText
	KindPhoto
	KindVideo
	KindCallback
)

func (k UpdateKind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindText:
		return "text"
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindCallback:
		return "callback"
	default:
		return "unknown"
	}
}

// Route is the dispatch decision for one update.
type Route int

const (
	RouteCommand Route = iota
	RoutePurchase
	RouteMedia
	RouteNoActiveFeature
	RoutePrompt
	RouteMenuShortcut
	RouteCallback
	RouteHelp
)

// menuShortcuts maps bare-integer text messages to feature entry commands.
var menuShortcuts = map[int]string{
	1: "faceshape",
	2: "symmetry",
	3: "attractiveness",
	4: "hairstyle",
	5: "background",
	6: "replace",
	7: "imagine",
	8: "buy",
}

// decide picks the handler for an update given the session, using a strict
// priority order. The order is a contract: the purchase flow must win over
// media and prompt intake, media over text prompts, and explicit commands over
// everything, so that no two flows can claim the same update.
func decide(kind UpdateKind, text string, s *session.Session) Route {
	// 1. Commands always win and reset the conversation.
	if kind == KindCommand {
		return RouteCommand
	}

	// 2. An in-flight purchase consumes every non-command update.
	if s.Awaiting.PurchaseAwait() {
		return RoutePurchase
	}

	// 3. Media goes to the active feature's intake step.
	if kind == KindPhoto || kind == KindVideo {
		if s.Feature == session.FeatureNone {
			return RouteNoActiveFeature
		}
		return RouteMedia
	}

	if kind == KindText {
		// 4. Text answers the prompt a feature is waiting for.
		if s.Awaiting.PromptAwait() {
			return RoutePrompt
		}
		// 5. A bare small integer is a menu shortcut.
		if _, ok := MenuShortcut(text); ok {
			return RouteMenuShortcut
		}
	}

	// 6. Callbacks continue an active flow; no reset.
	if kind == KindCallback {
		return RouteCallback
	}

	// 7. Anything else earns the help text.
	return RouteHelp
}

// MenuShortcut resolves a bare integer message to its feature entry command.
func MenuShortcut(text string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return "", false
	}
	cmd, ok := menuShortcuts[n]
	return cmd, ok
}
