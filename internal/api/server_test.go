package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fystack/jackpot-engine/internal/fairness"
	"github.com/fystack/jackpot-engine/internal/jackpot"
	"github.com/fystack/jackpot-engine/internal/metrics"
	"github.com/fystack/jackpot-engine/internal/worker"
	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/kvstore"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/fystack/jackpot-engine/pkg/store/activitystore"
	"github.com/fystack/jackpot-engine/pkg/store/payoutstore"
	"github.com/fystack/jackpot-engine/pkg/store/roomstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminToken = "admin-secret"
	wallet     = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

type stubRetrier struct {
	payouts payoutstore.Store
}

func (s stubRetrier) Retry(_ context.Context, room string, round uint64) (*model.Payout, error) {
	p, err := s.payouts.Get(room, round)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PayoutFailed {
		return nil, worker.ErrNotRetryable
	}
	p.Status = model.PayoutPending
	return p, s.payouts.Save(p)
}

type apiFixture struct {
	srv     *httptest.Server
	room    *jackpot.Room
	payouts payoutstore.Store
}

func newAPIFixture(t *testing.T, httpCfg config.HTTPConfig) *apiFixture {
	t.Helper()
	kv, err := kvstore.NewInMemoryBadgerStore("api", infra.JSON)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	activity := activitystore.NewKVStore(kv)
	room, err := jackpot.NewRoom(config.RoomConfig{Name: "main", RoundSeconds: 3, MaxWinnersHistory: 10}, jackpot.RoomDeps{
		Store:    roomstore.NewRoomStore(kv),
		Activity: activity,
		Drawer:   fairness.NewInsecureDrawer(7),
	})
	require.NoError(t, err)
	room.Start(context.Background())
	t.Cleanup(room.Stop)

	rooms := jackpot.NewManager(room)
	payouts := payoutstore.NewPayoutStore(kv)
	if httpCfg.AdminToken == "" {
		httpCfg.AdminToken = adminToken
	}

	s := NewServer(Deps{
		Rooms:    rooms,
		Admin:    jackpot.NewAdminService(rooms, activity),
		Activity: activity,
		Payouts:  payouts,
		Retrier:  stubRetrier{payouts: payouts},
		Metrics:  metrics.NewCollector("test"),
		Config:   httpCfg,
	})
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return &apiFixture{srv: srv, room: room, payouts: payouts}
}

func (f *apiFixture) call(t *testing.T, method, path, token, body string, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (f *apiFixture) join(t *testing.T, body string) int {
	t.Helper()
	return f.call(t, http.MethodPost, "/api/rooms/main/join", "", body, nil)
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})
	var got HealthResponse
	assert.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/health", "", "", &got))
	assert.Equal(t, "ok", got.Status)
	assert.Equal(t, 1, got.Rooms)
}

func TestAPI_JoinAndState(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})

	var ticket model.Ticket
	code := f.call(t, http.MethodPost, "/api/rooms/main/join", "", `{"amount":1.5,"username":"alice","wallet_address":"`+wallet+`"}`, &ticket)
	require.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, ticket.ID)
	assert.Equal(t, "alice", ticket.Username)

	assert.Equal(t, http.StatusCreated, f.join(t, `{"amount":"0.25","username":"bob"}`))

	var st jackpot.RoomState
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/rooms/main/state", "", "", &st))
	assert.Equal(t, "1.750", st.PotDisplay)
	assert.Len(t, st.Tickets, 2)

	var all []jackpot.RoomState
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/rooms", "", "", &all))
	require.Len(t, all, 1)
	assert.Equal(t, "main", all[0].Room)
}

func TestAPI_JoinRejectsBadInput(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"malformed amount", "/api/rooms/main/join", `{"amount":"abc","username":"a"}`, http.StatusBadRequest},
		{"zero amount", "/api/rooms/main/join", `{"amount":0,"username":"a"}`, http.StatusBadRequest},
		{"negative amount", "/api/rooms/main/join", `{"amount":-1,"username":"a"}`, http.StatusBadRequest},
		{"missing username", "/api/rooms/main/join", `{"amount":1}`, http.StatusBadRequest},
		{"unknown field", "/api/rooms/main/join", `{"amount":1,"username":"a","bonus":true}`, http.StatusBadRequest},
		{"unknown room", "/api/rooms/nope/join", `{"amount":1,"username":"a"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, f.call(t, http.MethodPost, tt.path, "", tt.body, nil))
		})
	}
}

func TestAPI_JoinRateLimitedPerWallet(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{JoinRPS: 1, JoinBurst: 2})
	body := `{"amount":0.1,"username":"alice","wallet_address":"` + wallet + `"}`

	assert.Equal(t, http.StatusCreated, f.join(t, body))
	assert.Equal(t, http.StatusCreated, f.join(t, body))
	assert.Equal(t, http.StatusTooManyRequests, f.join(t, body))

	// another wallet has its own bucket
	assert.Equal(t, http.StatusCreated, f.join(t, `{"amount":0.1,"username":"bob","wallet_address":"other"}`))
}

func TestAPI_JoinAfterSettlementOpensNextRound(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})
	require.Equal(t, http.StatusCreated, f.join(t, `{"amount":1,"username":"a","wallet_address":"`+wallet+`"}`))

	// three ticks settle the round, the next round accepts again
	for i := 0; i < 3; i++ {
		require.NoError(t, f.room.Tick(context.Background()))
	}
	assert.Equal(t, http.StatusCreated, f.join(t, `{"amount":1,"username":"a"}`))
}

func TestAPI_WinnersAndPayoutRetry(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})
	require.Equal(t, http.StatusCreated, f.join(t, `{"amount":4,"username":"a","wallet_address":"`+wallet+`"}`))
	for i := 0; i < 3; i++ {
		require.NoError(t, f.room.Tick(context.Background()))
	}

	var winners []model.Winner
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/rooms/main/winners", "", "", &winners))
	require.Len(t, winners, 1)
	assert.Equal(t, "3.8", winners[0].Amount.String())
	assert.Equal(t, model.PayoutPending, winners[0].PayoutStatus)
	round := winners[0].RoundID

	var payouts []model.Payout
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/admin/rooms/main/payouts?status=pending", adminToken, "", &payouts))
	require.Len(t, payouts, 1)

	path := "/api/admin/rooms/main/payouts/" + jsonUint(round) + "/retry"
	assert.Equal(t, http.StatusConflict, f.call(t, http.MethodPost, path, adminToken, "", nil))

	p, err := f.payouts.Get("main", round)
	require.NoError(t, err)
	p.Status = model.PayoutFailed
	require.NoError(t, f.payouts.Save(p))

	var requeued model.Payout
	assert.Equal(t, http.StatusAccepted, f.call(t, http.MethodPost, path, adminToken, "", &requeued))
	assert.Equal(t, model.PayoutPending, requeued.Status)

	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodPost, "/api/admin/rooms/main/payouts/999/retry", adminToken, "", nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, "/api/admin/rooms/main/payouts/x/retry", adminToken, "", nil))
}

func TestAPI_AdminRequiresToken(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})
	assert.Equal(t, http.StatusUnauthorized, f.call(t, http.MethodGet, "/api/admin/rooms/main/config", "", "", nil))
	assert.Equal(t, http.StatusForbidden, f.call(t, http.MethodGet, "/api/admin/rooms/main/config", "nope", "", nil))

	var cfg model.BiasConfig
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/admin/rooms/main/config", adminToken, "", &cfg))
	assert.Equal(t, 5.0, cfg.HouseEdge)
}

func TestAPI_AdminConfigMutations(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})
	base := "/api/admin/rooms/main"

	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPatch, base+"/config", adminToken, `{"house_edge":150}`, nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPatch, base+"/config", adminToken, `{"favor_factor":0.5}`, nil))

	// each response is decoded fresh, omitted fields must read as cleared
	mutate := func(method, path, body string) model.BiasConfig {
		t.Helper()
		var cfg model.BiasConfig
		require.Equal(t, http.StatusOK, f.call(t, method, base+path, adminToken, body, &cfg))
		return cfg
	}

	cfg := mutate(http.MethodPatch, "/config", `{"house_edge":10,"logging":false}`)
	assert.Equal(t, 10.0, cfg.HouseEdge)
	assert.False(t, cfg.Logging)

	cfg = mutate(http.MethodPut, "/forced-winner", `{"address":"`+wallet+`"}`)
	assert.True(t, cfg.ForceWinOnNextRound)
	assert.Equal(t, wallet, cfg.ForcedWinnerAddress)
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPut, base+"/forced-winner", adminToken, `{"address":" "}`, nil))

	cfg = mutate(http.MethodDelete, "/forced-winner", "")
	assert.False(t, cfg.ForceWinOnNextRound)
	assert.Empty(t, cfg.ForcedWinnerAddress)

	cfg = mutate(http.MethodPost, "/favored", `{"address":"`+wallet+`"}`)
	assert.Equal(t, []string{wallet}, cfg.FavoredWallets)
	cfg = mutate(http.MethodDelete, "/favored/"+wallet, "")
	assert.Empty(t, cfg.FavoredWallets)

	stored := mutate(http.MethodGet, "/config", "")
	assert.Empty(t, stored.ForcedWinnerAddress)
	assert.Empty(t, stored.FavoredWallets)
	assert.Equal(t, 10.0, stored.HouseEdge)

	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodGet, "/api/admin/rooms/nope/config", adminToken, "", nil))
}

func TestAPI_WalletActivity(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})

	var res map[string]bool
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/api/rooms/main/wallet/connect", "", `{"wallet_address":"`+wallet+`"}`, &res))
	assert.True(t, res["logged"])
	assert.Equal(t, http.StatusNotFound, f.call(t, http.MethodPost, "/api/rooms/main/wallet/withdraw", "", `{"wallet_address":"`+wallet+`"}`, nil))
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodPost, "/api/rooms/main/wallet/connect", "", `{}`, nil))

	require.Eventually(t, func() bool {
		var entries []model.ActivityEntry
		code := f.call(t, http.MethodGet, "/api/admin/rooms/main/activity?limit=10", adminToken, "", &entries)
		return code == http.StatusOK && len(entries) == 1 && entries[0].Action == model.ActionConnect
	}, 2*time.Second, 20*time.Millisecond)

	assert.Equal(t, http.StatusNoContent, f.call(t, http.MethodDelete, "/api/admin/rooms/main/activity", adminToken, "", nil))
	var entries []model.ActivityEntry
	require.Equal(t, http.StatusOK, f.call(t, http.MethodGet, "/api/admin/rooms/main/activity", adminToken, "", &entries))
	assert.Empty(t, entries)
	assert.Equal(t, http.StatusBadRequest, f.call(t, http.MethodGet, "/api/admin/rooms/main/activity?limit=-1", adminToken, "", nil))
}

func TestAPI_VerifyProof(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})
	seed := []byte("0123456789abcdef0123456789abcdef")
	proof := model.FairnessProof{
		SeedHash:    fairness.HashSeed(seed),
		Seed:        hex.EncodeToString(seed),
		PublicValue: "blockhash",
		RoundNumber: 3,
		Draw:        fairness.DrawFrom(seed, "blockhash", 3),
	}
	raw, err := json.Marshal(proof)
	require.NoError(t, err)

	var res verifyResponse
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/api/fairness/verify", "", string(raw), &res))
	assert.True(t, res.Valid)

	proof.RoundNumber = 4
	raw, err = json.Marshal(proof)
	require.NoError(t, err)
	res = verifyResponse{}
	require.Equal(t, http.StatusOK, f.call(t, http.MethodPost, "/api/fairness/verify", "", string(raw), &res))
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Error)
}

func TestAPI_MetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t, config.HTTPConfig{})
	f.call(t, http.MethodGet, "/api/rooms/main/state", "", "", nil)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `test_http_requests_total{code="200",method="GET",route="/api/rooms/{room}/state"}`)
}

func TestParseStake(t *testing.T) {
	a, err := parseStake(json.RawMessage(`"0.123456789"`))
	require.NoError(t, err)
	assert.Equal(t, "0.123456789", a.String())

	_, err = parseStake(json.RawMessage(`"1,5"`))
	assert.ErrorIs(t, err, jackpot.ErrInvalidStake)
	_, err = parseStake(json.RawMessage(`null`))
	assert.ErrorIs(t, err, jackpot.ErrInvalidStake)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(jackpot.ErrRoundLocked))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(jackpot.ErrRoomStopped))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}

func jsonUint(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
