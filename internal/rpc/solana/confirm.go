package solana

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrTransactionFailed = errors.New("transaction failed on chain")

// WaitForConfirmation polls the signature until it reaches commitment, fails on
// chain, or ctx ends.
func WaitForConfirmation(ctx context.Context, api SolanaAPI, signature, commitment string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		statuses, err := api.GetSignatureStatuses(ctx, []string{signature})
		if err == nil && len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionFailed, st.Err)
			}
			if st.Reached(commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("confirm %s: %w", signature, ctx.Err())
		case <-ticker.C:
		}
	}
}
