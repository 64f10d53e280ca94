// Package payout moves a winner's SOL from the house wallet to the winner.
// Executors perform a single attempt. Retrying and bookkeeping live in the
// payout worker.
package payout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/shopspring/decimal"
)

var (
	// ErrPermanent marks failures that another attempt cannot fix.
	ErrPermanent = errors.New("permanent payout failure")

	ErrInvalidDestination = fmt.Errorf("%w: invalid destination address", ErrPermanent)
	ErrInvalidAmount      = fmt.Errorf("%w: amount must be at least one lamport", ErrPermanent)
	// ErrInsufficientFunds is retried within the attempt budget, the house
	// wallet may be topped up in the meantime.
	ErrInsufficientFunds = errors.New("insufficient house funds")
	// ErrUnconfirmed means the transfer was submitted but not seen confirmed. It
	// may still land, so it is never retried automatically.
	ErrUnconfirmed = fmt.Errorf("%w: transfer submitted but not confirmed", ErrPermanent)

	ErrPayoutFailed = errors.New("payout failed")
)

type Request struct {
	Amount      decimal.Decimal
	Destination string
	GameID      string
}

type Result struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature,omitempty"`
	Message   string `json:"message,omitempty"`
}

type Executor interface {
	Name() string
	// Execute makes one attempt. A returned error wrapping ErrPermanent must not be retried.
	Execute(ctx context.Context, req Request) (Result, error)
}

// BalanceReporter is implemented by executors that hold the house key.
type BalanceReporter interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Lamports converts SOL to lamports, rounding down.
func Lamports(amount decimal.Decimal) uint64 {
	l := amount.Shift(constant.SOLDecimals).Floor()
	if !l.IsPositive() {
		return 0
	}
	return l.BigInt().Uint64()
}

func FromLamports(l uint64) decimal.Decimal {
	return decimal.NewFromUint64(l).Shift(-constant.SOLDecimals)
}
