package payout

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/fystack/jackpot-engine/internal/rpc"
	"github.com/fystack/jackpot-engine/internal/rpc/solana"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const winnerAddress = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func testKey() ed25519.PrivateKey {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return ed25519.NewKeyFromSeed(seed)
}

type fakeSolana struct {
	mu       sync.Mutex
	balance  uint64
	status   *solana.SignatureStatus
	sendErr  error
	sent     [][]byte
	balances []string
}

func (f *fakeSolana) GetHealth(context.Context) error { return nil }

func (f *fakeSolana) GetBalance(_ context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = append(f.balances, address)
	return f.balance, nil
}

func (f *fakeSolana) GetLatestBlockhash(context.Context) (string, error) {
	return base58.Encode(make([]byte, 32)), nil
}

func (f *fakeSolana) SendTransaction(_ context.Context, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// a lost reply still reaches the cluster
	f.sent = append(f.sent, raw)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "5sig", nil
}

func (f *fakeSolana) GetSignatureStatuses(context.Context, []string) ([]*solana.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return []*solana.SignatureStatus{f.status}, nil
}

func newSolanaExecutor(api *fakeSolana) *SolanaExecutor {
	return NewSolanaExecutor(api, testKey(), SolanaOptions{
		ConfirmTimeout: 100 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
}

func TestLamports(t *testing.T) {
	assert.Equal(t, uint64(3_800_000_000), Lamports(decimal.RequireFromString("3.8")))
	assert.Equal(t, uint64(1), Lamports(decimal.RequireFromString("0.0000000019")))
	assert.Equal(t, uint64(0), Lamports(decimal.RequireFromString("0.0000000009")))
	assert.Equal(t, uint64(0), Lamports(decimal.RequireFromString("-1")))
	assert.True(t, FromLamports(1_500_000_000).Equal(decimal.RequireFromString("1.5")))
}

func TestSolanaExecutor_Success(t *testing.T) {
	api := &fakeSolana{
		balance: 10 * 1_000_000_000,
		status:  &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed},
	}
	exec := newSolanaExecutor(api)

	res, err := exec.Execute(context.Background(), Request{
		Amount:      decimal.RequireFromString("3.8"),
		Destination: winnerAddress,
		GameID:      "main-1",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "5sig", res.Signature)

	require.Len(t, api.sent, 1)
	assert.Equal(t, []string{exec.HouseAddress()}, api.balances)
}

func TestSolanaExecutor_Balance(t *testing.T) {
	exec := newSolanaExecutor(&fakeSolana{balance: 2_500_000_000})
	bal, err := exec.Balance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("2.5")))
}

func TestSolanaExecutor_PermanentFailures(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		balance uint64
		want    error
	}{
		{"invalid destination", Request{Amount: decimal.NewFromInt(1), Destination: "not-base58!"}, 10e9, ErrInvalidDestination},
		{"sub-lamport amount", Request{Amount: decimal.RequireFromString("0.0000000001"), Destination: winnerAddress}, 10e9, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeSolana{balance: tt.balance}
			_, err := newSolanaExecutor(api).Execute(context.Background(), tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsPermanent(err))
			assert.Empty(t, api.sent)
		})
	}
}

func TestSolanaExecutor_InsufficientFundsIsRetryable(t *testing.T) {
	api := &fakeSolana{balance: 4e9}
	res, err := newSolanaExecutor(api).Execute(context.Background(), Request{Amount: decimal.NewFromInt(5), Destination: winnerAddress})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.False(t, IsPermanent(err))
	assert.Contains(t, res.Message, "need 5 SOL")
	assert.Empty(t, api.sent)
}

func TestSolanaExecutor_RejectedSendIsRetryable(t *testing.T) {
	api := &fakeSolana{balance: 10e9, sendErr: &rpc.RPCError{Code: -32002, Message: "Blockhash not found"}}
	_, err := newSolanaExecutor(api).Execute(context.Background(), Request{Amount: decimal.NewFromInt(1), Destination: winnerAddress})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

// sentSignature returns the signature of a serialized single-signer transfer.
func sentSignature(raw []byte) string {
	return base58.Encode(raw[1:65])
}

func TestSolanaExecutor_LostSendReplyGoesToReview(t *testing.T) {
	api := &fakeSolana{balance: 10e9, sendErr: context.DeadlineExceeded}
	exec := newSolanaExecutor(api)
	req := Request{Amount: decimal.NewFromInt(1), Destination: winnerAddress, GameID: "main-7"}

	res, err := exec.Execute(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnconfirmed)
	assert.True(t, IsPermanent(err), "a second attempt would sign a different transfer")

	require.Len(t, api.sent, 1)
	assert.Equal(t, sentSignature(api.sent[0]), res.Signature)
}

func TestSolanaExecutor_LostSendReplyThatLands(t *testing.T) {
	api := &fakeSolana{
		balance: 10e9,
		sendErr: errors.New("read tcp: connection reset by peer"),
		status:  &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed},
	}
	res, err := newSolanaExecutor(api).Execute(context.Background(), Request{Amount: decimal.NewFromInt(1), Destination: winnerAddress})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, api.sent, 1)
	assert.Equal(t, sentSignature(api.sent[0]), res.Signature)
}

func TestSolanaExecutor_FailedOnChainIsRetryable(t *testing.T) {
	api := &fakeSolana{
		balance: 10e9,
		status:  &solana.SignatureStatus{Err: map[string]any{"InstructionError": []any{0, "Custom"}}},
	}
	res, err := newSolanaExecutor(api).Execute(context.Background(), Request{Amount: decimal.NewFromInt(1), Destination: winnerAddress})
	require.Error(t, err)
	assert.ErrorIs(t, err, solana.ErrTransactionFailed)
	assert.False(t, IsPermanent(err))
	assert.Equal(t, "5sig", res.Signature)
}

func TestSolanaExecutor_UnconfirmedIsNotRetried(t *testing.T) {
	api := &fakeSolana{balance: 10e9}
	res, err := newSolanaExecutor(api).Execute(context.Background(), Request{Amount: decimal.NewFromInt(1), Destination: winnerAddress})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnconfirmed)
	assert.True(t, IsPermanent(err))
	assert.Equal(t, "5sig", res.Signature)
}

func TestRelayExecutor_Success(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/payouts", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		require.NoError(t, dec.Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "signature": "relaysig"})
	}))
	defer srv.Close()

	exec := NewRelayExecutor(srv.URL+"/", "secret", time.Second)
	res, err := exec.Execute(context.Background(), Request{
		Amount:      decimal.RequireFromString("3.8"),
		Destination: winnerAddress,
		GameID:      "main-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "relaysig", res.Signature)

	assert.Equal(t, json.Number("3.8"), got["amount"])
	assert.Equal(t, winnerAddress, got["destination"])
	assert.Equal(t, "main-1", got["gameId"])
}

func TestRelayExecutor_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"bad request", http.StatusBadRequest, `{"success":false,"message":"Invalid amount: must be a positive number"}`, true},
		{"unauthorized", http.StatusUnauthorized, `{"success":false,"message":"Unauthorized - No token provided"}`, true},
		{"server error", http.StatusInternalServerError, `{"success":false,"message":"Insufficient balance"}`, false},
		{"ok without success", http.StatusOK, `{"success":false}`, false},
		{"gateway html", http.StatusBadGateway, `<html>bad gateway</html>`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res, err := NewRelayExecutor(srv.URL, "", time.Second).Execute(context.Background(), Request{Amount: decimal.NewFromInt(1), Destination: winnerAddress})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, IsPermanent(err))
			assert.False(t, res.Success)
		})
	}
}

func TestRelayExecutor_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRelayExecutor(url, "", 200*time.Millisecond).Execute(context.Background(), Request{Amount: decimal.NewFromInt(1), Destination: winnerAddress})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestNoopExecutor(t *testing.T) {
	res, err := NewNoopExecutor().Execute(context.Background(), Request{GameID: "main-3"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "noop-main-3", res.Signature)
}

func TestNewFromConfig(t *testing.T) {
	var cfg config.Config

	cfg.Payout.Executor = enum.PayoutExecutorNoop
	exec, err := NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "noop", exec.Name())

	cfg.Payout.Executor = enum.PayoutExecutorRelay
	cfg.Payout.Relay.URL = "http://relay:3001"
	exec, err = NewFromConfig(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "relay", exec.Name())

	cfg.Payout.Executor = enum.PayoutExecutorSolana
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)

	t.Setenv("TEST_HOUSE_KEY", base58.Encode(testKey()))
	cfg.Solana.HouseKeyEnv = "TEST_HOUSE_KEY"
	exec, err = NewFromConfig(cfg, &fakeSolana{})
	require.NoError(t, err)
	assert.Equal(t, "solana", exec.Name())
	assert.Equal(t, solana.PublicKeyOf(testKey()).String(), exec.(*SolanaExecutor).HouseAddress())

	cfg.Payout.Executor = "carrier-pigeon"
	_, err = NewFromConfig(cfg, nil)
	assert.Error(t, err)
}
