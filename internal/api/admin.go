package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fystack/jackpot-engine/internal/jackpot"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/go-chi/chi/v5"
)

type addressRequest struct {
	Address string `json:"address" validate:"required,max=64"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Admin.GetBiasConfig(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var u jackpot.BiasUpdate
	if err := decodeBody(w, r, &u); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := s.deps.Admin.UpdateBiasConfig(r.Context(), chi.URLParam(r, "room"), u)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleSetForcedWinner(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	cfg, err := s.deps.Admin.SetForcedWinner(r.Context(), chi.URLParam(r, "room"), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleClearForcedWinner(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Admin.ClearForcedWinner(r.Context(), chi.URLParam(r, "room"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleAddFavored(w http.ResponseWriter, r *http.Request) {
	addr, ok := s.decodeAddress(w, r)
	if !ok {
		return
	}
	cfg, err := s.deps.Admin.AddFavoredWallet(r.Context(), chi.URLParam(r, "room"), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleRemoveFavored(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Admin.RemoveFavoredWallet(r.Context(), chi.URLParam(r, "room"), chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	room, err := s.room(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Activity == nil {
		writeJSON(w, http.StatusOK, []model.ActivityEntry{})
		return
	}

	limit := defaultActivityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorJSON(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.deps.Activity.List(r.Context(), room.ID(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []model.ActivityEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClearActivity(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Admin.ClearActivityLog(r.Context(), chi.URLParam(r, "room")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	room, err := s.room(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Payouts == nil {
		writeJSON(w, http.StatusOK, []*model.Payout{})
		return
	}

	payouts, err := s.deps.Payouts.List(room.ID())
	if err != nil {
		writeError(w, err)
		return
	}
	if status := model.PayoutStatus(r.URL.Query().Get("status")); status != "" {
		filtered := payouts[:0]
		for _, p := range payouts {
			if p.Status == status {
				filtered = append(filtered, p)
			}
		}
		payouts = filtered
	}
	writeJSON(w, http.StatusOK, payouts)
}

func (s *Server) handleRetryPayout(w http.ResponseWriter, r *http.Request) {
	room, err := s.room(r)
	if err != nil {
		writeError(w, err)
		return
	}
	round, err := strconv.ParseUint(chi.URLParam(r, "round"), 10, 64)
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "round must be a positive integer")
		return
	}
	if s.deps.Retrier == nil {
		writeErrorJSON(w, http.StatusServiceUnavailable, "payout worker is not running")
		return
	}

	p, err := s.deps.Retrier.Retry(r.Context(), room.ID(), round)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

func (s *Server) decodeAddress(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req addressRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	req.Address = strings.TrimSpace(req.Address)
	if err := s.validate.Struct(req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return req.Address, true
}
