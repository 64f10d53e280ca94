package jackpot

import (
	"context"
	"fmt"
	"time"

	"github.com/fystack/jackpot-engine/internal/fairness"
	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/model"
)

// SettlementStore persists the result of a round in one batch.
type SettlementStore interface {
	SaveSettlement(room string, round uint64, winners []model.Winner, payout *model.Payout, bias *model.BiasConfig) error
}

// Settlement is what a successful Settle hands back to the room.
type Settlement struct {
	Winner  *model.Winner
	Payout  *model.Payout
	History []model.Winner
	// Bias is the config with the one-shot forced winner cleared, nil when
	// nothing was armed.
	Bias *model.BiasConfig
}

type Settler struct {
	roomID     string
	store      SettlementStore
	drawer     fairness.Drawer
	maxHistory int
	now        func() time.Time
}

func NewSettler(roomID string, store SettlementStore, drawer fairness.Drawer, maxHistory int) *Settler {
	if maxHistory <= 0 {
		maxHistory = constant.DefaultMaxWinnersHistory
	}
	return &Settler{
		roomID:     roomID,
		store:      store,
		drawer:     drawer,
		maxHistory: maxHistory,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Settle closes a locked round. cfg must be the configuration snapshotted when
// settlement started. Nothing is returned to the caller before the new history
// and the pending payout are durable. An empty round yields ErrNoActiveTickets.
func (s *Settler) Settle(ctx context.Context, snap Snapshot, cfg model.BiasConfig, c *fairness.Commitment, history []model.Winner) (*Settlement, error) {
	if len(snap.Tickets) == 0 {
		return nil, ErrNoActiveTickets
	}

	u, proof, err := s.drawer.Draw(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("draw round %d: %w", snap.Round, err)
	}

	sel, _ := SelectWinner(snap.Tickets, cfg, u)
	edge := ClampPercent(cfg.HouseEdge)

	w := &model.Winner{
		RoomID:        s.roomID,
		RoundID:       snap.Round,
		TicketID:      sel.Ticket.ID,
		Username:      sel.Ticket.Username,
		Avatar:        sel.Ticket.Avatar,
		WalletAddress: sel.Ticket.WalletAddress,
		IsInternal:    sel.Ticket.IsInternal,
		Amount:        PayoutAmount(snap.Pot, edge),
		Pot:           snap.Pot,
		HouseEdge:     edge,
		Chance:        sel.Chance,
		Forced:        sel.Forced,
		Timestamp:     s.now(),
		PayoutStatus:  model.PayoutUnclaimable,
		Proof:         proof,
	}

	var payout *model.Payout
	if w.WalletAddress != "" && w.Amount.IsPositive() {
		w.PayoutStatus = model.PayoutPending
		payout = &model.Payout{
			RoomID:      s.roomID,
			RoundID:     snap.Round,
			Destination: w.WalletAddress,
			Amount:      w.Amount,
			Status:      model.PayoutPending,
			CreatedAt:   w.Timestamp,
			UpdatedAt:   w.Timestamp,
		}
	}

	// one-shot, whether or not the forced wallet played this round
	var bias *model.BiasConfig
	if cfg.ForceWinOnNextRound || cfg.ForcedWinnerAddress != "" {
		cleared := cfg.Clone()
		cleared.ForceWinOnNextRound = false
		cleared.ForcedWinnerAddress = ""
		bias = &cleared
	}

	next := PrependHistory(history, *w, s.maxHistory)
	if err := s.store.SaveSettlement(s.roomID, snap.Round, next, payout, bias); err != nil {
		return nil, fmt.Errorf("persist round %d: %w", snap.Round, err)
	}
	return &Settlement{Winner: w, Payout: payout, History: next, Bias: bias}, nil
}

// PrependHistory returns a new slice with w first, bounded to limit entries.
func PrependHistory(history []model.Winner, w model.Winner, limit int) []model.Winner {
	n := min(len(history)+1, max(limit, 1))
	out := make([]model.Winner, 0, n)
	out = append(out, w)
	for _, h := range history {
		if len(out) == n {
			break
		}
		out = append(out, h)
	}
	return out
}
