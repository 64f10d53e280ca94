// Package relay is the payout relay: a small authenticated HTTP service that
// holds the house key and performs transfers on behalf of the engine.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fystack/jackpot-engine/internal/payout"
	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	msgNoToken       = "Unauthorized - No token provided"
	msgInvalidToken  = "Forbidden - Invalid token"
	msgMissingFields = "Missing required fields: amount and destination"
	msgInvalidAmount = "Invalid amount: must be a positive number"
	msgAlreadySent   = "Payout already submitted for this game and awaiting review"

	maxBodyBytes    = 1 << 16
	shutdownTimeout = 10 * time.Second
)

type payoutRequest struct {
	Amount      json.RawMessage `json:"amount" validate:"required"`
	Destination string          `json:"destination" validate:"required"`
	GameID      string          `json:"gameId" validate:"omitempty,max=128"`
}

type payoutResponse struct {
	Success     bool        `json:"success"`
	Signature   string      `json:"signature,omitempty"`
	Amount      json.Number `json:"amount,omitempty"`
	Destination string      `json:"destination,omitempty"`
	Message     string      `json:"message,omitempty"`
	Timestamp   int64       `json:"timestamp"`
}

type balanceResponse struct {
	Success bool        `json:"success"`
	Balance json.Number `json:"balance"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// record is what the relay remembers per game id.
type record struct {
	GameID      string          `json:"game_id"`
	Status      string          `json:"status"`
	Signature   string          `json:"signature,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

const (
	// written before the transfer is sent, so a crash mid-send still blocks a resend
	recordSubmitting  = "submitting"
	recordPaid        = "paid"
	recordUnconfirmed = "unconfirmed"
	recordFailed      = "failed"
)

type Server struct {
	executor payout.Executor
	balance  payout.BalanceReporter
	token    string
	store    infra.KVStore
	validate *validator.Validate
	now      func() time.Time

	// payouts are serialized so a game id is never in flight twice
	mu sync.Mutex
}

// NewServer builds the relay. token may be empty, in which case any bearer
// token is accepted. store may be nil to disable game id deduplication.
func NewServer(executor payout.Executor, balance payout.BalanceReporter, token string, store infra.KVStore) *Server {
	return &Server{
		executor: executor,
		balance:  balance,
		token:    token,
		store:    store,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         60 * 15,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(rr chi.Router) {
		rr.Use(s.auth)
		rr.Get("/balance", s.handleBalance)
		rr.Post("/payouts", s.handlePayout)
	})
	return r
}

// Run serves the relay on port until ctx is done.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Payout relay started", "port", port, "executor", s.executor.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown relay: %w", err)
	}
	logger.Info("Payout relay stopped")
	return nil
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		_, token, _ := strings.Cut(header, " ")
		token = strings.TrimSpace(token)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: msgNoToken})
			return
		}
		if s.token != "" && token != s.token {
			writeJSON(w, http.StatusForbidden, errorResponse{Message: msgInvalidToken})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "executor": s.executor.Name()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if s.balance == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Message: "balance is not available for the " + s.executor.Name() + " executor"})
		return
	}
	bal, err := s.balance.Balance(r.Context())
	if err != nil {
		logger.Error("Error getting house balance", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Success: true, Balance: json.Number(bal.String())})
}

func (s *Server) handlePayout(w http.ResponseWriter, r *http.Request) {
	var req payoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.fail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if isNull(req.Amount) {
		req.Amount = nil
	}
	req.Destination = strings.TrimSpace(req.Destination)
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.fail(w, http.StatusBadRequest, msgInvalidAmount)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.lookup(req.GameID); ok {
		switch prev.Status {
		case recordPaid:
			logger.Info("Duplicate payout request, returning previous result", "game_id", req.GameID, "signature", prev.Signature)
			writeJSON(w, http.StatusOK, payoutResponse{
				Success:     true,
				Signature:   prev.Signature,
				Amount:      json.Number(prev.Amount.String()),
				Destination: prev.Destination,
				Timestamp:   s.now().UnixMilli(),
			})
			return
		case recordUnconfirmed, recordSubmitting:
			s.fail(w, http.StatusConflict, msgAlreadySent)
			return
		}
	}

	s.remember(record{GameID: req.GameID, Status: recordSubmitting, Amount: amount, Destination: req.Destination})

	logger.Info("Processing payout", "game_id", req.GameID, "amount", amount.String(), "destination", req.Destination)
	res, err := s.executor.Execute(r.Context(), payout.Request{
		Amount:      amount,
		Destination: req.Destination,
		GameID:      req.GameID,
	})
	if err != nil {
		logger.Error("Payout failed", "game_id", req.GameID, "err", err)
		status := recordFailed
		if errors.Is(err, payout.ErrUnconfirmed) {
			status = recordUnconfirmed
		}
		s.remember(record{GameID: req.GameID, Status: status, Signature: res.Signature, Amount: amount, Destination: req.Destination})
		code := http.StatusInternalServerError
		if payout.IsPermanent(err) {
			code = http.StatusUnprocessableEntity
		}
		s.fail(w, code, err.Error())
		return
	}

	s.remember(record{GameID: req.GameID, Status: recordPaid, Signature: res.Signature, Amount: amount, Destination: req.Destination})
	logger.Info("Payout processed", "game_id", req.GameID, "signature", res.Signature)
	writeJSON(w, http.StatusOK, payoutResponse{
		Success:     true,
		Signature:   res.Signature,
		Amount:      json.Number(amount.String()),
		Destination: req.Destination,
		Timestamp:   s.now().UnixMilli(),
	})
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg, Timestamp: s.now().UnixMilli()})
}

func recordKey(gameID string) string {
	return fmt.Sprintf("%s/%s", constant.KVPrefixRelay, gameID)
}

func (s *Server) lookup(gameID string) (record, bool) {
	if s.store == nil || gameID == "" {
		return record{}, false
	}
	var rec record
	found, err := s.store.GetAny(recordKey(gameID), &rec)
	if err != nil {
		logger.Warn("Failed to read payout record", "game_id", gameID, "err", err)
		return record{}, false
	}
	return rec, found
}

func (s *Server) remember(rec record) {
	if s.store == nil || rec.GameID == "" {
		return
	}
	rec.UpdatedAt = s.now().UTC()
	if err := s.store.SetAny(recordKey(rec.GameID), rec); err != nil {
		logger.Warn("Failed to save payout record", "game_id", rec.GameID, "err", err)
	}
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// parseAmount accepts a positive JSON number. Strings are rejected.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return decimal.Zero, err
	}
	n, ok := v.(json.Number)
	if !ok {
		return decimal.Zero, errors.New("amount is not a number")
	}
	amount, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, errors.New("amount must be positive")
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", "status", statusCode, "err", err)
	}
}
