package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RelayExecutor delegates the transfer to the payout relay service over HTTP.
type RelayExecutor struct {
	url    string
	token  string
	client *http.Client
}

type relayRequest struct {
	Amount      json.Number `json:"amount"`
	Destination string      `json:"destination"`
	GameID      string      `json:"gameId"`
}

func NewRelayExecutor(baseURL, token string, timeout time.Duration) *RelayExecutor {
	return &RelayExecutor{
		url:    strings.TrimSuffix(baseURL, "/") + "/api/payouts",
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

func (e *RelayExecutor) Name() string { return "relay" }

func (e *RelayExecutor) Execute(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(relayRequest{
		Amount:      json.Number(req.Amount.String()),
		Destination: req.Destination,
		GameID:      req.GameID,
	})
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Result{Message: err.Error()}, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Message: err.Error()}, fmt.Errorf("read relay response: %w", err)
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		res.Message = strings.TrimSpace(string(raw))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300 && res.Success:
		return res, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return res, fmt.Errorf("%w: relay rejected payout (HTTP %d): %s", ErrPermanent, resp.StatusCode, res.Message)
	default:
		return res, fmt.Errorf("%w: relay HTTP %d: %s", ErrPayoutFailed, resp.StatusCode, res.Message)
	}
}
