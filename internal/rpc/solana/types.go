package solana

const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

type commitmentConfig struct {
	Commitment string `json:"commitment,omitempty"`
}

type sendConfig struct {
	Encoding            string `json:"encoding"`
	PreflightCommitment string `json:"preflightCommitment,omitempty"`
	SkipPreflight       bool   `json:"skipPreflight"`
}

type statusConfig struct {
	SearchTransactionHistory bool `json:"searchTransactionHistory"`
}

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

type balanceResult struct {
	Context rpcContext `json:"context"`
	Value   uint64     `json:"value"`
}

type blockhashResult struct {
	Context rpcContext `json:"context"`
	Value   struct {
		Blockhash            string `json:"blockhash"`
		LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
	} `json:"value"`
}

type signatureStatusesResult struct {
	Context rpcContext         `json:"context"`
	Value   []*SignatureStatus `json:"value"`
}

// SignatureStatus is nil in results for signatures the node does not know.
type SignatureStatus struct {
	Slot               uint64  `json:"slot"`
	Confirmations      *uint64 `json:"confirmations"`
	Err                any     `json:"err"`
	ConfirmationStatus string  `json:"confirmationStatus"`
}

// Reached reports whether the status satisfies the wanted commitment.
func (s *SignatureStatus) Reached(commitment string) bool {
	if s == nil {
		return false
	}
	rank := map[string]int{CommitmentProcessed: 1, CommitmentConfirmed: 2, CommitmentFinalized: 3}
	return rank[s.ConfirmationStatus] >= rank[commitment] && rank[s.ConfirmationStatus] > 0
}
