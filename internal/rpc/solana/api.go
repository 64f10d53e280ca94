package solana

import "context"

// SolanaAPI is the slice of the Solana JSON-RPC surface the payout path and the
// fairness beacon need.
type SolanaAPI interface {
	GetHealth(ctx context.Context) error
	GetBalance(ctx context.Context, address string) (uint64, error)
	GetLatestBlockhash(ctx context.Context) (string, error)
	SendTransaction(ctx context.Context, raw []byte) (string, error)
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}
