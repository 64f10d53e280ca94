package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/fystack/jackpot-engine/internal/fairness"
	"github.com/fystack/jackpot-engine/internal/jackpot"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Rooms     int       `json:"rooms"`
}

type joinRequest struct {
	// Amount accepts a JSON number or a numeric string.
	Amount        json.RawMessage `json:"amount" validate:"required"`
	Username      string          `json:"username" validate:"required,max=64"`
	Avatar        string          `json:"avatar" validate:"omitempty,max=512"`
	WalletAddress string          `json:"wallet_address" validate:"omitempty,max=64"`
	IsInternal    bool            `json:"is_internal"`
}

type walletActivityRequest struct {
	WalletAddress string          `json:"wallet_address" validate:"required,max=64"`
	IsInternal    bool            `json:"is_internal"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference" validate:"omitempty,max=128"`
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

var walletActions = map[string]model.ActivityAction{
	"connect":    model.ActionConnect,
	"disconnect": model.ActionDisconnect,
	"transfer":   model.ActionTransfer,
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   s.deps.Version,
		Rooms:     len(s.deps.Rooms.Rooms()),
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.deps.Rooms.Rooms()
	out := make([]jackpot.RoomState, 0, len(rooms))
	for _, room := range rooms {
		st, err := room.State(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	room, err := s.room(r)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := room.State(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	room, err := s.room(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req joinRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if err := s.validate.Struct(req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseStake(req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	if !s.limiter.TryAcquire(limiterKey(r, req.WalletAddress)) {
		writeErrorJSON(w, http.StatusTooManyRequests, "too many bets, slow down")
		return
	}

	ticket, err := room.Join(r.Context(), amount, jackpot.Bettor{
		Username:      req.Username,
		Avatar:        req.Avatar,
		WalletAddress: req.WalletAddress,
		IsInternal:    req.IsInternal,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) handleWinners(w http.ResponseWriter, r *http.Request) {
	room, err := s.room(r)
	if err != nil {
		writeError(w, err)
		return
	}
	winners, err := room.History(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, winners)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var proof model.FairnessProof
	if err := decodeBody(w, r, &proof); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := fairness.Verify(proof); err != nil {
		writeJSON(w, http.StatusOK, verifyResponse{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Valid: true})
}

func (s *Server) handleWalletActivity(w http.ResponseWriter, r *http.Request) {
	action, ok := walletActions[chi.URLParam(r, "action")]
	if !ok {
		writeErrorJSON(w, http.StatusNotFound, "unknown wallet action")
		return
	}
	room, err := s.room(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req walletActivityRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.WalletAddress = strings.TrimSpace(req.WalletAddress)
	if err := s.validate.Struct(req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Amount.IsNegative() {
		writeErrorJSON(w, http.StatusBadRequest, "amount must not be negative")
		return
	}

	logged, err := room.LogActivity(r.Context(), model.ActivityEntry{
		WalletAddress: req.WalletAddress,
		IsInternal:    req.IsInternal,
		Action:        action,
		Amount:        req.Amount,
		Reference:     req.Reference,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"logged": logged})
}

// parseStake accepts a JSON number or a numeric string. Anything else is an
// invalid stake.
func parseStake(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	var s string
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, fmt.Errorf("%w: %v", jackpot.ErrInvalidStake, err)
		}
	} else {
		s = string(raw)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", jackpot.ErrInvalidStake, s)
	}
	return amount, nil
}

func limiterKey(r *http.Request, wallet string) string {
	if wallet != "" {
		return "wallet:" + wallet
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
