package payout

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/jackpot-engine/internal/rpc/solana"
	"github.com/fystack/jackpot-engine/pkg/common/logger"
	"github.com/shopspring/decimal"
)

type SolanaOptions struct {
	Commitment     string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// SolanaExecutor signs System Program transfers with the house key and submits
// them through the configured nodes.
type SolanaExecutor struct {
	api   solana.SolanaAPI
	key   ed25519.PrivateKey
	house solana.PublicKey
	opts  SolanaOptions
}

var (
	_ Executor        = (*SolanaExecutor)(nil)
	_ BalanceReporter = (*SolanaExecutor)(nil)
)

func NewSolanaExecutor(api solana.SolanaAPI, key ed25519.PrivateKey, opts SolanaOptions) *SolanaExecutor {
	if opts.Commitment == "" {
		opts.Commitment = solana.CommitmentConfirmed
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &SolanaExecutor{api: api, key: key, house: solana.PublicKeyOf(key), opts: opts}
}

func (e *SolanaExecutor) Name() string { return "solana" }

func (e *SolanaExecutor) HouseAddress() string { return e.house.String() }

func (e *SolanaExecutor) Balance(ctx context.Context) (decimal.Decimal, error) {
	l, err := e.api.GetBalance(ctx, e.house.String())
	if err != nil {
		return decimal.Zero, err
	}
	return FromLamports(l), nil
}

func (e *SolanaExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	dest, err := solana.ParsePublicKey(req.Destination)
	if err != nil {
		return Result{Message: err.Error()}, fmt.Errorf("%w: %s", ErrInvalidDestination, req.Destination)
	}
	lamports := Lamports(req.Amount)
	if lamports == 0 {
		return Result{Message: ErrInvalidAmount.Error()}, ErrInvalidAmount
	}

	balance, err := e.api.GetBalance(ctx, e.house.String())
	if err != nil {
		return Result{Message: err.Error()}, fmt.Errorf("get house balance: %w", err)
	}
	if balance < lamports {
		msg := fmt.Sprintf("%s SOL available, need %s SOL", FromLamports(balance), FromLamports(lamports))
		return Result{Message: msg}, fmt.Errorf("%w: %s", ErrInsufficientFunds, msg)
	}

	blockhash, err := e.api.GetLatestBlockhash(ctx)
	if err != nil {
		return Result{Message: err.Error()}, fmt.Errorf("get blockhash: %w", err)
	}
	tx, err := solana.BuildTransfer(e.key, dest, lamports, blockhash)
	if err != nil {
		return Result{Message: err.Error()}, fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	sig := tx.SignatureString()
	sent, err := e.api.SendTransaction(ctx, tx.Serialize())
	switch {
	case err == nil:
		if sent != "" {
			sig = sent
		}
		logger.Info("Payout transaction submitted", "game_id", req.GameID, "signature", sig, "lamports", lamports)
	case solana.IsRejected(err):
		// the node refused these bytes, a new transfer cannot double pay
		return Result{Message: err.Error()}, fmt.Errorf("send transaction: %w", err)
	default:
		// the node may have accepted it before the reply was lost
		logger.Warn("Payout send outcome unknown, watching signature",
			"game_id", req.GameID, "signature", sig, "err", err)
	}

	return e.confirm(ctx, sig, err)
}

// confirm waits for sig. sendErr is the send failure, if any, that left the
// transfer in an unknown state.
func (e *SolanaExecutor) confirm(ctx context.Context, sig string, sendErr error) (Result, error) {
	confirmCtx, cancel := context.WithTimeout(ctx, e.opts.ConfirmTimeout)
	defer cancel()
	err := solana.WaitForConfirmation(confirmCtx, e.api, sig, e.opts.Commitment, e.opts.PollInterval)
	switch {
	case err == nil:
		return Result{Success: true, Signature: sig}, nil
	case errors.Is(err, solana.ErrTransactionFailed):
		// nothing moved, a fresh attempt is safe
		return Result{Signature: sig, Message: err.Error()}, err
	case sendErr != nil:
		return Result{Signature: sig, Message: sendErr.Error()},
			fmt.Errorf("%w: %s: send: %v", ErrUnconfirmed, sig, sendErr)
	default:
		return Result{Signature: sig, Message: err.Error()}, fmt.Errorf("%w: %s: %v", ErrUnconfirmed, sig, err)
	}
}
