// Package webhook runs the HTTP side of the bot: payment provider callbacks,
// Prometheus metrics, and a basic-auth admin API.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visagelab/visagebot/internal/payments"
	"github.com/visagelab/visagebot/internal/payments/cardpay"
	"github.com/visagelab/visagebot/internal/payments/cryptoinv"
	"github.com/visagelab/visagebot/internal/service"
)

// PaymentNotifier delivers reconciliation outcomes to the paying user.
type PaymentNotifier interface {
	NotifyPayment(ctx context.Context, result *service.ReconcileResult)
}

type Server struct {
	addr       string
	secret     string
	username   string
	password   string
	log        *slog.Logger
	reconciler *service.Reconciler
	notifier   PaymentNotifier
	users      *service.UserService
	packages   *service.PackageService
	promos     *service.PromoService
	ledger     *service.LedgerService
	bot        *tgbotapi.BotAPI
	router     *chi.Mux
}

func NewServer(
	addr, secret, username, password string,
	log *slog.Logger,
	reconciler *service.Reconciler,
	notifier PaymentNotifier,
	users *service.UserService,
	packages *service.PackageService,
	promos *service.PromoService,
	ledger *service.LedgerService,
	bot *tgbotapi.BotAPI,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:       addr,
		secret:     secret,
		username:   username,
		password:   password,
		log:        log,
		reconciler: reconciler,
		notifier:   notifier,
		users:      users,
		packages:   packages,
		promos:     promos,
		ledger:     ledger,
		bot:        bot,
		router:     r,
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(hooks chi.Router) {
		hooks.Use(s.secretMiddleware())
		hooks.Post("/webhook/cardpay", s.handleCardPayWebhook)
		hooks.Post("/webhook/cryptoinv", s.handleCryptoInvWebhook)
	})
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Post("/credits/grant", s.handleGrantCredits)
		protected.Route("/packages", func(r chi.Router) {
			r.Get("/", s.handleListPackages)
			r.Post("/", s.handleCreatePackage)
			r.Put("/{id}", s.handleUpdatePackage)
			r.Delete("/{id}", s.handleDeletePackage)
		})
		protected.Route("/promo-codes", func(r chi.Router) {
			r.Get("/", s.handleListPromos)
			r.Post("/", s.handleCreatePromo)
			r.Delete("/{id}", s.handleDeletePromo)
		})
	})
	return s
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("webhook shutdown error", "err", err)
		}
	}()

	s.log.Info("webhook server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("webhook listen: %w", err)
	}
	return nil
}

// cardPayEvent is the card provider's notification shape. Only the fields the
// reconciler needs are decoded; the raw body is stored with the transaction.
type cardPayEvent struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

func (s *Server) handleCardPayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	var event cardPayEvent
	if err := json.Unmarshal(body, &event); err != nil || event.Object.ID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	s.applyWebhook(w, r, "cardpay", event.Object.ID, cardpay.NormalizeStatus(event.Object.Status), body)
}

type cryptoInvEvent struct {
	UUID    string `json:"uuid"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (s *Server) handleCryptoInvWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	var event cryptoInvEvent
	if err := json.Unmarshal(body, &event); err != nil || event.UUID == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	s.applyWebhook(w, r, "cryptoinv", event.UUID, cryptoinv.NormalizeStatus(event.Status), body)
}

// applyWebhook drives the reconciler with a provider-pushed status. A webhook
// racing a user-triggered check is safe: the grant happens at most once and
// only the winning call notifies with Granted set.
func (s *Server) applyWebhook(w http.ResponseWriter, r *http.Request, provider, paymentID string, status payments.Status, body []byte) {
	result, err := s.reconciler.Apply(r.Context(), provider, paymentID, status, string(body))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnreconcilable):
			// Not our payment. Acknowledge so the provider stops retrying.
			s.log.Warn("unreconcilable webhook", "provider", provider, "payment_id", paymentID)
			w.WriteHeader(http.StatusOK)
		default:
			s.log.Error("webhook apply", "provider", provider, "payment_id", paymentID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	s.notifier.NotifyPayment(r.Context(), result)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ids, err := s.users.ListTelegramIDs(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}

	count := 0
	for _, id := range ids {
		if _, err := s.bot.Send(tgbotapi.NewMessage(id, req.Message)); err != nil {
			s.log.Error("send broadcast", "user", id, "err", err)
			continue
		}
		count++
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  count,
		"total": len(ids),
	})
}

type grantCreditsRequest struct {
	UserID int64  `json:"user_id"`
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

func (s *Server) handleGrantCredits(w http.ResponseWriter, r *http.Request) {
	var req grantCreditsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 || req.Amount <= 0 {
		http.Error(w, "user_id and positive amount required", http.StatusBadRequest)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "admin_grant"
	}

	balance, err := s.ledger.Credit(r.Context(), req.UserID, req.Amount, reason, "admin")
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": req.UserID,
		"granted": req.Amount,
		"balance": balance,
	})
}

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := s.packages.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, packages)
}

type packageRequest struct {
	Code            string `json:"code"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Currency        string `json:"currency"`
	PriceMinorUnits int    `json:"price_minor_units"`
	Credits         int    `json:"credits"`
	IsActive        *bool  `json:"is_active"`
}

func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pkg, err := s.packages.Create(r.Context(), service.CreatePackageInput{
		Code:            req.Code,
		Title:           req.Title,
		Description:     req.Description,
		Currency:        req.Currency,
		PriceMinorUnits: req.PriceMinorUnits,
		Credits:         req.Credits,
		IsActive:        req.IsActive,
	})
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pkg)
}

type packageUpdateRequest struct {
	Title           *string `json:"title"`
	Description     *string `json:"description"`
	Currency        *string `json:"currency"`
	PriceMinorUnits *int    `json:"price_minor_units"`
	Credits         *int    `json:"credits"`
	IsActive        *bool   `json:"is_active"`
}

func (s *Server) handleUpdatePackage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req packageUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	pkg, err := s.packages.Update(r.Context(), id, service.UpdatePackageInput{
		Title:           req.Title,
		Description:     req.Description,
		Currency:        req.Currency,
		PriceMinorUnits: req.PriceMinorUnits,
		Credits:         req.Credits,
		IsActive:        req.IsActive,
	})
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pkg)
}

func (s *Server) handleDeletePackage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.packages.Delete(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPromos(w http.ResponseWriter, r *http.Request) {
	promos, err := s.promos.List(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, promos)
}

type promoRequest struct {
	Code    string `json:"code"`
	MaxUses int    `json:"max_uses"`
}

func (s *Server) handleCreatePromo(w http.ResponseWriter, r *http.Request) {
	var req promoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.Code == "" || req.MaxUses <= 0 {
		http.Error(w, "code and max_uses required", http.StatusBadRequest)
		return
	}
	promo, err := s.promos.Create(r.Context(), req.Code, req.MaxUses)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, promo)
}

func (s *Server) handleDeletePromo(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := s.promos.Delete(r.Context(), id); err != nil {
		s.badRequest(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// secretMiddleware rejects webhook calls without the shared token when one is
// configured. Providers that sign payloads instead can leave the secret empty.
func (s *Server) secretMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.secret != "" && r.Header.Get("X-Webhook-Token") != s.secret {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="visagebot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("webhook handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}
