package vision_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/visagelab/visagebot/internal/vision"
)

func TestAnalyzeFaceShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/face-shape" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header = %q", auth)
		}
		var req struct {
			Image []byte `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Image) == 0 {
			t.Errorf("bad request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"face_found":   true,
			"shape":        "oval",
			"measurements": map[string]float64{"jaw_width": 0.42},
			"landmarks":    []map[string]float64{{"x": 1, "y": 2}},
		})
	}))
	defer server.Close()

	client := vision.NewClient(server.URL, "test-key", time.Second, slog.Default())
	result, err := client.AnalyzeFaceShape(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result == nil || result.Shape != "oval" || len(result.Landmarks) != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestAnalyzeFaceShapeNoFaceIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"face_found": false})
	}))
	defer server.Close()

	client := vision.NewClient(server.URL, "test-key", time.Second, slog.Default())
	result, err := client.AnalyzeFaceShape(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("no face must not be an error, got %v", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil", result)
	}
}

func TestAnalyzeFaceShapeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := vision.NewClient(server.URL, "test-key", time.Second, slog.Default())
	if _, err := client.AnalyzeFaceShape(context.Background(), []byte("x")); err == nil {
		t.Fatal("expected an error on non-2xx status")
	}
}
