package telegram

import (
	"testing"

	"github.com/visagelab/visagebot/internal/session"
)

func TestDecidePriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		kind UpdateKind
		text string
		sess session.Session
		want Route
	}{
		{
			name: "command wins over everything",
			kind: KindCommand,
			text: "/start",
			sess: session.Session{Feature: session.FeaturePurchase, Awaiting: session.AwaitPaymentMethod},
			want: RouteCommand,
		},
		{
			name: "purchase consumes text while awaiting package",
			kind: KindText,
			text: "2",
			sess: session.Session{Feature: session.FeaturePurchase, Awaiting: session.AwaitPackageSelection},
			want: RoutePurchase,
		},
		{
			name: "purchase consumes photos too",
			kind: KindPhoto,
			sess: session.Session{Feature: session.FeaturePurchase, Awaiting: session.AwaitPaymentMethod},
			want: RoutePurchase,
		},
		{
			name: "photo without active feature",
			kind: KindPhoto,
			sess: session.Session{},
			want: RouteNoActiveFeature,
		},
		{
			name: "photo with active feature",
			kind: KindPhoto,
			sess: session.Session{Feature: session.FeatureFaceShape},
			want: RouteMedia,
		},
		{
			name: "video with active feature",
			kind: KindVideo,
			sess: session.Session{Feature: session.FeatureAttractiveness},
			want: RouteMedia,
		},
		{
			name: "text answers awaited prompt",
			kind: KindText,
			text: "replace the car with a bike",
			sess: session.Session{Feature: session.FeatureReplace, Awaiting: session.AwaitReplacePrompt},
			want: RoutePrompt,
		},
		{
			name: "awaited prompt beats menu shortcut digits",
			kind: KindText,
			text: "4",
			sess: session.Session{Feature: session.FeatureTextToImage, Awaiting: session.AwaitTextPrompt},
			want: RoutePrompt,
		},
		{
			name: "bare integer is a menu shortcut when idle",
			kind: KindText,
			text: "4",
			sess: session.Session{},
			want: RouteMenuShortcut,
		},
		{
			name: "free text when idle gets help",
			kind: KindText,
			text: "hello there",
			sess: session.Session{},
			want: RouteHelp,
		},
		{
			name: "out of range integer gets help",
			kind: KindText,
			text: "9",
			sess: session.Session{},
			want: RouteHelp,
		},
		{
			name: "callback continues a flow",
			kind: KindCallback,
			sess: session.Session{Feature: session.FeatureHairstyle, Customization: session.SelectingGender},
			want: RouteCallback,
		},
		{
			name: "callback yields to an in-flight purchase",
			kind: KindCallback,
			sess: session.Session{Feature: session.FeaturePurchase, Awaiting: session.AwaitPackageSelection},
			want: RoutePurchase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decide(tt.kind, tt.text, &tt.sess); got != tt.want {
				t.Errorf("decide(%v, %q) = %v, want %v", tt.kind, tt.text, got, tt.want)
			}
		})
	}
}

func TestMenuShortcut(t *testing.T) {
	if cmd, ok := MenuShortcut(" 8 "); !ok || cmd != "buy" {
		t.Errorf("MenuShortcut(\" 8 \") = %q, %v", cmd, ok)
	}
	if _, ok := MenuShortcut("0"); ok {
		t.Error("MenuShortcut(\"0\") should not resolve")
	}
	if _, ok := MenuShortcut("abc"); ok {
		t.Error("MenuShortcut(\"abc\") should not resolve")
	}
}
