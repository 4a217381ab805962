// Package session holds the per-chat conversation state machine. A chat has at
// most one active feature and at most one awaited input at a time; the router
// relies on both to dispatch incoming updates without cross-talk between flows.
package session

import "sync"

// Feature identifies the flow a chat is currently inside.
type Feature int

const (
	FeatureNone Feature = iota
	FeatureFaceShape
	FeatureSymmetry
	FeatureAttractiveness
	FeatureHairstyle
	FeatureBackground
	FeatureReplace
	FeatureTextToImage
	FeaturePurchase
)

func (f Feature) String() string {
	switch f {
	case FeatureFaceShape:
		return "face_shape"
	case FeatureSymmetry:
		return "symmetry"
	case FeatureAttractiveness:
		return "attractiveness"
	case FeatureHairstyle:
		return "hairstyle"
	case FeatureBackground:
		return "background"
	case FeatureReplace:
		return "replace"
	case FeatureTextToImage:
		return "text_to_image"
	case FeaturePurchase:
		return "purchase"
	default:
		return "none"
	}
}

// Awaiting names the single input a flow is waiting for. Being a scalar rather
// than a set of flags makes "at most one wait reason" structural: writing a new
// value always clears the previous one.
type Awaiting int

const (
	AwaitNothing Awaiting = iota
	AwaitAnalysisMethod
	AwaitPackageSelection
	AwaitPaymentMethod
	AwaitTextPrompt
	AwaitReplacePrompt
	AwaitBackgroundPrompt
	AwaitStyleChoice
	AwaitStyleImage
	AwaitHairstyleSelection
)

// PurchaseAwait reports whether the wait reason belongs to the purchase flow,
// which takes routing priority over everything except commands.
func (a Awaiting) PurchaseAwait() bool {
	return a == AwaitPackageSelection || a == AwaitPaymentMethod
}

// PromptAwait reports whether the wait reason expects free-form text for a
// feature flow.
func (a Awaiting) PromptAwait() bool {
	switch a {
	case AwaitTextPrompt, AwaitReplacePrompt, AwaitBackgroundPrompt, AwaitStyleChoice, AwaitHairstyleSelection:
		return true
	default:
		return false
	}
}

// Customization is the hairstyle try-on sub-state machine. Only meaningful
// while Feature == FeatureHairstyle.
type Customization int

const (
	CustomizationNone Customization = iota
	SelectingGender
	SelectingStyle
	InputColorLength
	SelectingLength
	SelectingTexture
)

// Point is a 2D facial landmark.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Session is the mutable per-chat state. Transient fields are only valid while
// Feature references the flow that produced them; Reset clears them. FaceShape,
// Measurements and Landmarks are long-lived analysis results that later flows
// (hairstyle try-on) depend on, so Reset preserves them.
type Session struct {
	Feature       Feature
	Awaiting      Awaiting
	Customization Customization

	// Transient flow payload.
	PhotoURL      string
	StyleImageURL string

	// Hairstyle try-on picks.
	Gender     string
	StyleIndex int
	HairColor  string
	HairLength string
	Texture    string

	// Purchase picks.
	PackageCode   string
	PaymentMethod string

	// Long-lived analysis results (survive Reset).
	FaceShape    string
	FacePhotoURL string
	Measurements map[string]float64
	Landmarks    []Point

	// Preferred language of the chat, from the last seen update.
	LanguageCode string
}

// ClearTransient drops everything except long-lived analysis results and the
// language preference.
func (s *Session) ClearTransient() {
	s.Feature = FeatureNone
	s.Awaiting = AwaitNothing
	s.Customization = CustomizationNone
	s.PhotoURL = ""
	s.StyleImageURL = ""
	s.Gender = ""
	s.StyleIndex = 0
	s.HairColor = ""
	s.HairLength = ""
	s.Texture = ""
	s.PackageCode = ""
	s.PaymentMethod = ""
}

// Store keeps one Session per chat id plus a per-chat mutex so updates for the
// same chat are processed strictly serially while different chats proceed in
// parallel.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	locks    map[int64]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// Get returns the chat's session, lazily creating an empty one. It never fails.
func (st *Store) Get(chatID int64) *Session {
	st.mu.RLock()
	s, ok := st.sessions[chatID]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok = st.sessions[chatID]; ok {
		return s
	}
	s = &Session{}
	st.sessions[chatID] = s
	return s
}

// Reset clears the chat's active flow and every transient field. Called on all
// feature-entry commands and /start so flows never leak wait-state into one
// another.
func (st *Store) Reset(chatID int64) {
	st.Get(chatID).ClearTransient()
}

// Lock serializes update handling for one chat. Held for the whole
// read-route-mutate-reply span of an update.
func (st *Store) Lock(chatID int64) {
	st.chatMutex(chatID).Lock()
}

func (st *Store) Unlock(chatID int64) {
	st.chatMutex(chatID).Unlock()
}

func (st *Store) chatMutex(chatID int64) *sync.Mutex {
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.locks[chatID]
	if !ok {
		m = &sync.Mutex{}
		st.locks[chatID] = m
	}
	return m
}
