package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/visagelab/visagebot/internal/genimage"
	"github.com/visagelab/visagebot/internal/metrics"
	"github.com/visagelab/visagebot/internal/models"
	"github.com/visagelab/visagebot/internal/repository"
	"github.com/visagelab/visagebot/internal/service"
	"github.com/visagelab/visagebot/internal/session"
)

// genServer fakes the generation API: createTask hands out a task id, the
// status poll reports the given terminal state.
func genServer(t *testing.T, state, resultURL, failMsg string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/createTask"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code": 200,
				"data": map[string]any{"taskId": "task-1"},
			})
		case strings.HasSuffix(r.URL.Path, "/recordInfo"):
			data := map[string]any{"taskId": "task-1", "state": state}
			if resultURL != "" {
				resultJSON, _ := json.Marshal(map[string]any{"resultUrls": []string{resultURL}})
				data["resultJson"] = string(resultJSON)
			}
			if failMsg != "" {
				data["failMsg"] = failMsg
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 200, "data": data})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func tryOnOptions() genimage.HairstyleOptions {
	return genimage.HairstyleOptions{
		ImageURL:   "https://cdn.example.com/face.jpg",
		Landmarks:  []session.Point{{X: 1, Y: 2}},
		FaceShape:  "oval",
		StyleIndex: 2,
		Gender:     "female",
		Color:      "chestnut",
		Length:     "long",
		Texture:    "wavy",
	}
}

func TestTryOnChargesAfterSuccess(t *testing.T) {
	server := genServer(t, "success", "https://cdn.example.com/render.png", "")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET credits = credits - ").
		WithArgs(2, int64(5), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO credit_entries").
		WithArgs(int64(5), -2, "hairstyle", "style=2").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO feature_logs").
		WithArgs(int64(5), "hairstyle", sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(1, 1))

	m := metrics.Registry("test")
	gen := genimage.NewClient(server.URL, "key", time.Second, slog.Default())
	ledger := service.NewLedgerService(repository.NewLedgerRepository(db), m)
	svc := service.NewHairstyleService(slog.Default(), gen, ledger, repository.NewFeatureLogRepository(db), 2, m)

	img, err := svc.TryOn(context.Background(), &models.User{ID: 5}, tryOnOptions())
	if err != nil {
		t.Fatalf("try on: %v", err)
	}
	if img.URL != "https://cdn.example.com/render.png" {
		t.Errorf("img.URL = %q", img.URL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTryOnFailedGenerationNeverCharges(t *testing.T) {
	server := genServer(t, "fail", "", "model overloaded")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	// No database expectations: a failed render must not touch the ledger.

	m := metrics.Registry("test")
	gen := genimage.NewClient(server.URL, "key", time.Second, slog.Default())
	ledger := service.NewLedgerService(repository.NewLedgerRepository(db), m)
	svc := service.NewHairstyleService(slog.Default(), gen, ledger, repository.NewFeatureLogRepository(db), 2, m)

	_, err = svc.TryOn(context.Background(), &models.User{ID: 5}, tryOnOptions())
	if err == nil {
		t.Fatal("expected an error for a failed render")
	}
	if !strings.Contains(err.Error(), "apply hairstyle") {
		t.Fatalf("err = %v, want the generation failure, not a ledger error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTryOnWithholdsResultWhenBalanceDrained(t *testing.T) {
	server := genServer(t, "success", "https://cdn.example.com/render.png", "")

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users SET credits = credits - ").
		WithArgs(2, int64(5), 2).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	m := metrics.Registry("test")
	gen := genimage.NewClient(server.URL, "key", time.Second, slog.Default())
	ledger := service.NewLedgerService(repository.NewLedgerRepository(db), m)
	svc := service.NewHairstyleService(slog.Default(), gen, ledger, repository.NewFeatureLogRepository(db), 2, m)

	img, err := svc.TryOn(context.Background(), &models.User{ID: 5}, tryOnOptions())
	if !errors.Is(err, service.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if img != nil {
		t.Fatal("result delivered without a successful charge")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestTryOnRequiresAnalysis(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	m := metrics.Registry("test")
	gen := genimage.NewClient("http://localhost:1", "key", time.Second, slog.Default())
	ledger := service.NewLedgerService(repository.NewLedgerRepository(db), m)
	svc := service.NewHairstyleService(slog.Default(), gen, ledger, repository.NewFeatureLogRepository(db), 2, m)

	opts := tryOnOptions()
	opts.FaceShape = ""
	if _, err := svc.TryOn(context.Background(), &models.User{ID: 5}, opts); !errors.Is(err, service.ErrFaceShapeRequired) {
		t.Fatalf("err = %v, want ErrFaceShapeRequired", err)
	}

	opts = tryOnOptions()
	opts.Landmarks = nil
	if _, err := svc.TryOn(context.Background(), &models.User{ID: 5}, opts); !errors.Is(err, service.ErrFaceShapeRequired) {
		t.Fatalf("err = %v, want ErrFaceShapeRequired", err)
	}
}
