package translate_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/visagelab/visagebot/internal/translate"
)

func TestTranslate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/translate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "DeepL-Auth-Key test-key" {
			t.Errorf("auth header = %q", auth)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.Form.Get("target_lang") != "EN" || r.Form.Get("source_lang") != "RU" {
			t.Errorf("form = %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"translations":[{"text":"red background"}]}`))
	}))
	defer server.Close()

	client := translate.NewClient(server.URL, "test-key", time.Second, slog.Default())
	out, err := client.Translate(context.Background(), "красный фон", "ru", "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if out != "red background" {
		t.Errorf("out = %q", out)
	}
}

func TestTranslateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer server.Close()

	client := translate.NewClient(server.URL, "test-key", time.Second, slog.Default())
	if _, err := client.Translate(context.Background(), "текст", "", "en"); err == nil {
		t.Fatal("expected an error on non-2xx status")
	}
}
