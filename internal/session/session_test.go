package session_test

import (
	"sync"
	"testing"

	"github.com/visagelab/visagebot/internal/session"
)

func TestResetPreservesAnalysisResults(t *testing.T) {
	st := session.NewStore()
	sess := st.Get(42)

	sess.Feature = session.FeatureHairstyle
	sess.Awaiting = session.AwaitHairstyleSelection
	sess.Customization = session.SelectingStyle
	sess.PhotoURL = "https://cdn.example.com/a.jpg"
	sess.StyleImageURL = "https://cdn.example.com/style.jpg"
	sess.Gender = "female"
	sess.PackageCode = "basic"

	sess.FaceShape = "oval"
	sess.FacePhotoURL = "https://cdn.example.com/face.jpg"
	sess.Measurements = map[string]float64{"jaw_width": 0.42}
	sess.Landmarks = []session.Point{{X: 1, Y: 2}}
	sess.LanguageCode = "ru"

	st.Reset(42)

	if sess.Feature != session.FeatureNone {
		t.Errorf("Feature = %v, want FeatureNone", sess.Feature)
	}
	if sess.Awaiting != session.AwaitNothing {
		t.Errorf("Awaiting = %v, want AwaitNothing", sess.Awaiting)
	}
	if sess.Customization != session.CustomizationNone {
		t.Errorf("Customization = %v, want CustomizationNone", sess.Customization)
	}
	if sess.PhotoURL != "" || sess.StyleImageURL != "" || sess.Gender != "" || sess.PackageCode != "" {
		t.Errorf("transient fields survived reset: %+v", sess)
	}

	if sess.FaceShape != "oval" {
		t.Errorf("FaceShape = %q, want it preserved", sess.FaceShape)
	}
	if sess.FacePhotoURL != "https://cdn.example.com/face.jpg" {
		t.Errorf("FacePhotoURL = %q, want it preserved", sess.FacePhotoURL)
	}
	if len(sess.Landmarks) != 1 || len(sess.Measurements) != 1 {
		t.Error("landmarks or measurements lost on reset")
	}
	if sess.LanguageCode != "ru" {
		t.Errorf("LanguageCode = %q, want it preserved", sess.LanguageCode)
	}
}

func TestGetReturnsSameSession(t *testing.T) {
	st := session.NewStore()
	a := st.Get(7)
	a.FaceShape = "round"
	b := st.Get(7)
	if a != b {
		t.Fatal("Get returned a different session for the same chat")
	}
	if st.Get(8) == a {
		t.Fatal("different chats share a session")
	}
}

func TestAwaitingIsSingleValued(t *testing.T) {
	var s session.Session
	s.Awaiting = session.AwaitPackageSelection
	if !s.Awaiting.PurchaseAwait() {
		t.Error("AwaitPackageSelection should be a purchase wait")
	}
	s.Awaiting = session.AwaitTextPrompt
	if s.Awaiting.PurchaseAwait() {
		t.Error("overwriting Awaiting must clear the previous wait reason")
	}
	if !s.Awaiting.PromptAwait() {
		t.Error("AwaitTextPrompt should be a prompt wait")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	st := session.NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			st.Lock(chat)
			st.Get(chat).PhotoURL = "x"
			st.Unlock(chat)
			st.Reset(chat)
		}(int64(i % 4))
	}
	wg.Wait()
}
