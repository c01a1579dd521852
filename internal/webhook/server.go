// internal/webhook/server.go
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/madakixo/jayy-bot/internal/types"
)

// SettlementReporter consumes settlement signals, typically the
// reconciliation bridge.
type SettlementReporter interface {
	ReportSettlement(ctx context.Context, ref types.Reference, status types.SettlementStatus) error
}

// Server receives payment-provider callbacks. The settlement signal is
// at-least-once and possibly duplicated; the reporter behind it is
// idempotent, so this layer only authenticates and decodes.
type Server struct {
	secret   string
	reporter SettlementReporter
	router   chi.Router
}

// NewServer creates a webhook Server authenticating callbacks with the
// given provider secret.
func NewServer(secret string, reporter SettlementReporter) *Server {
	s := &Server{secret: secret, reporter: reporter}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Post("/paystack/webhook", s.handlePaystack)
	s.router = r
	return s
}

// ServeHTTP delegates to the router, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// paystackEvent is the subset of the provider payload the bridge needs.
type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

func (s *Server) handlePaystack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, `{"error":"read body"}`, http.StatusBadRequest)
		return
	}

	if !s.validSignature(body, r.Header.Get("x-paystack-signature")) {
		slog.Warn("rejecting webhook with bad signature", "remote", r.RemoteAddr)
		http.Error(w, `{"error":"invalid signature"}`, http.StatusUnauthorized)
		return
	}

	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if event.Data.Reference == "" {
		http.Error(w, `{"error":"reference required"}`, http.StatusBadRequest)
		return
	}

	status := settlementStatus(event.Data.Status)
	if !status.Terminal() {
		// Non-terminal notifications (pending, processing) carry nothing
		// for the ledger; acknowledge and wait for the terminal one.
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.reporter.ReportSettlement(r.Context(), types.Reference(event.Data.Reference), status); err != nil {
		slog.Error("report settlement failed", "reference", event.Data.Reference, "error", err)
		// Non-2xx makes the provider redeliver; the reporter is idempotent.
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// validSignature checks the HMAC-SHA512 hex digest of the raw body.
func (s *Server) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(s.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func settlementStatus(provider string) types.SettlementStatus {
	switch provider {
	case "success":
		return types.StatusSettled
	case "failed", "abandoned", "reversed":
		return types.StatusFailed
	default:
		return types.StatusPending
	}
}
