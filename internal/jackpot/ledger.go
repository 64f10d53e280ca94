package jackpot

import (
	"fmt"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bettor describes who placed a ticket. An empty WalletAddress is an anonymous player.
type Bettor struct {
	Username      string `json:"username"`
	Avatar        string `json:"avatar,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	IsInternal    bool   `json:"is_internal"`
}

// Snapshot is an immutable copy of the round handed to settlement and read models.
type Snapshot struct {
	Round    uint64
	State    enum.RoundState
	Tickets  []model.Ticket
	Pot      decimal.Decimal
	TimeLeft int
	Duration int
}

// Ledger holds exactly one round. It is not safe for concurrent use, the owning
// Room serializes every call.
type Ledger struct {
	round    uint64
	state    enum.RoundState
	tickets  []model.Ticket
	pot      decimal.Decimal
	duration int
	timeLeft int
	spinning bool
	pending  *model.Winner

	now   func() time.Time
	newID func() string
}

func NewLedger(roundSeconds int, round uint64) *Ledger {
	if roundSeconds <= 0 {
		roundSeconds = constant.DefaultRoundSeconds
	}
	if round == 0 {
		round = 1
	}
	return &Ledger{
		round:    round,
		state:    enum.RoundStateAccepting,
		pot:      decimal.Zero,
		duration: roundSeconds,
		timeLeft: roundSeconds,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Join appends a ticket and grows the pot by exactly its amount. Amounts finer
// than a lamport are truncated.
func (l *Ledger) Join(amount decimal.Decimal, b Bettor) (model.Ticket, error) {
	amount = amount.Truncate(constant.SOLDecimals)
	if !amount.IsPositive() {
		return model.Ticket{}, fmt.Errorf("%w: %s", ErrInvalidStake, amount)
	}
	if l.state != enum.RoundStateAccepting {
		return model.Ticket{}, ErrRoundLocked
	}

	t := model.Ticket{
		ID:            l.newID(),
		Username:      b.Username,
		Avatar:        b.Avatar,
		WalletAddress: b.WalletAddress,
		Amount:        amount,
		IsInternal:    b.IsInternal,
		CreatedAt:     l.now(),
	}
	l.tickets = append(l.tickets, t)
	l.pot = l.pot.Add(amount)
	return t, nil
}

// Tick advances the timer by one step. It returns true exactly once per round,
// when the timer expires and the round locks.
func (l *Ledger) Tick() bool {
	if l.state != enum.RoundStateAccepting {
		return false
	}
	if l.timeLeft > 0 {
		l.timeLeft--
	}
	if l.timeLeft > 0 {
		return false
	}
	l.state = enum.RoundStateSettling
	l.spinning = len(l.tickets) > 0
	return true
}

// SetPending records the winner chosen for the locked round until Reset.
func (l *Ledger) SetPending(w *model.Winner) {
	l.pending = w
}

// Reset opens the next round: no tickets, zero pot, full timer.
func (l *Ledger) Reset() {
	l.round++
	l.state = enum.RoundStateAccepting
	l.tickets = nil
	l.pot = decimal.Zero
	l.timeLeft = l.duration
	l.spinning = false
	l.pending = nil
}

func (l *Ledger) Snapshot() Snapshot {
	tickets := make([]model.Ticket, len(l.tickets))
	copy(tickets, l.tickets)
	return Snapshot{
		Round:    l.round,
		State:    l.state,
		Tickets:  tickets,
		Pot:      l.pot,
		TimeLeft: l.timeLeft,
		Duration: l.duration,
	}
}

func (l *Ledger) Round() uint64          { return l.round }
func (l *Ledger) State() enum.RoundState { return l.state }
func (l *Ledger) Pot() decimal.Decimal   { return l.pot }
func (l *Ledger) TimeLeft() int          { return l.timeLeft }
func (l *Ledger) Spinning() bool         { return l.spinning }
func (l *Ledger) Pending() *model.Winner { return l.pending }
func (l *Ledger) TicketCount() int       { return len(l.tickets) }
