package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Ticket is one bet in the current round. Tickets are never mutated after Join.
type Ticket struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	Avatar        string          `json:"avatar,omitempty"`
	WalletAddress string          `json:"wallet_address,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	IsInternal    bool            `json:"is_internal"`
	CreatedAt     time.Time       `json:"created_at"`
}

type PayoutStatus string

const (
	PayoutPending PayoutStatus = "pending"
	PayoutPaid    PayoutStatus = "paid"
	PayoutFailed  PayoutStatus = "failed"
	// no wallet on the winning ticket, nothing can be sent
	PayoutUnclaimable PayoutStatus = "unclaimable"
)

// Winner is the outcome of one settled round.
type Winner struct {
	RoomID        string          `json:"room_id"`
	RoundID       uint64          `json:"round_id"`
	TicketID      string          `json:"ticket_id"`
	Username      string          `json:"username"`
	Avatar        string          `json:"avatar,omitempty"`
	WalletAddress string          `json:"wallet_address,omitempty"`
	IsInternal    bool            `json:"is_internal"`
	Amount        decimal.Decimal `json:"amount"`
	Pot           decimal.Decimal `json:"pot"`
	HouseEdge     float64         `json:"house_edge"`
	Chance        float64         `json:"chance"`
	Forced        bool            `json:"forced,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`

	PayoutStatus   PayoutStatus `json:"payout_status"`
	PayoutAttempts int          `json:"payout_attempts"`
	TxSignature    string       `json:"tx_signature,omitempty"`
	LastError      string       `json:"last_error,omitempty"`

	Proof *FairnessProof `json:"proof,omitempty"`
}

// BiasConfig is the operator controlled configuration consumed by the odds calculator.
type BiasConfig struct {
	HouseEdge           float64  `json:"house_edge"`
	MinWinChance        float64  `json:"min_win_chance"`
	FavoredWallets      []string `json:"favored_wallets"`
	FavorFactor         float64  `json:"favor_factor"`
	ForceWinOnNextRound bool     `json:"force_win_on_next_round"`
	ForcedWinnerAddress string   `json:"forced_winner_address,omitempty"`
	Logging             bool     `json:"logging"`
}

func (c BiasConfig) Clone() BiasConfig {
	out := c
	out.FavoredWallets = append([]string(nil), c.FavoredWallets...)
	return out
}

type ActivityAction string

const (
	ActionBet          ActivityAction = "bet"
	ActionWin          ActivityAction = "win"
	ActionForcedWin    ActivityAction = "win (forced)"
	ActionConnect      ActivityAction = "connect"
	ActionDisconnect   ActivityAction = "disconnect"
	ActionTransfer     ActivityAction = "transfer"
	ActionPayout       ActivityAction = "payout"
	ActionPayoutFailed ActivityAction = "payout_failed"
)

// ActivityEntry is an append-only audit record. It never carries key material.
type ActivityEntry struct {
	ID            string          `json:"id"`
	RoomID        string          `json:"room_id"`
	Timestamp     time.Time       `json:"timestamp"`
	WalletAddress string          `json:"wallet_address"`
	IsInternal    bool            `json:"is_internal"`
	Action        ActivityAction  `json:"action"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference,omitempty"`
}

// Payout is an outbox entry written together with the Winner it pays.
type Payout struct {
	RoomID      string          `json:"room_id"`
	RoundID     uint64          `json:"round_id"`
	Destination string          `json:"destination"`
	Amount      decimal.Decimal `json:"amount"`
	Status      PayoutStatus    `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	TxSignature string          `json:"tx_signature,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// GameID identifies the payout towards executors, used as idempotency key.
func (p Payout) GameID() string {
	return PayoutGameID(p.RoomID, p.RoundID)
}

func PayoutGameID(roomID string, roundID uint64) string {
	return roomID + "-" + strconv.FormatUint(roundID, 10)
}

// FairnessProof lets anyone recompute a round's draw once the seed is revealed.
type FairnessProof struct {
	SeedHash    string  `json:"seed_hash"`
	Seed        string  `json:"seed,omitempty"`
	PublicValue string  `json:"public_value"`
	RoundNumber uint64  `json:"round_number"`
	Draw        float64 `json:"draw"`
}
