package jackpot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fystack/jackpot-engine/internal/fairness"
	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/kvstore"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/fystack/jackpot-engine/pkg/store/payoutstore"
	"github.com/fystack/jackpot-engine/pkg/store/roomstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedDrawer always draws u.
type fixedDrawer struct {
	mu sync.Mutex
	u  float64
}

func (d *fixedDrawer) set(u float64) {
	d.mu.Lock()
	d.u = u
	d.mu.Unlock()
}

func (d *fixedDrawer) Open(round uint64) (*fairness.Commitment, error) {
	return &fairness.Commitment{Round: round, SeedHash: "fixed"}, nil
}

func (d *fixedDrawer) Draw(context.Context, *fairness.Commitment) (float64, *model.FairnessProof, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.u, nil, nil
}

// flakyStore fails the next n settlements.
type flakyStore struct {
	roomstore.Store
	mu    sync.Mutex
	fails int
	calls int
}

func (s *flakyStore) SaveSettlement(room string, round uint64, winners []model.Winner, payout *model.Payout, bias *model.BiasConfig) error {
	s.mu.Lock()
	s.calls++
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("store unavailable")
	}
	s.mu.Unlock()
	return s.Store.SaveSettlement(room, round, winners, payout, bias)
}

func newKV(t *testing.T) infra.KVStore {
	t.Helper()
	kv, err := kvstore.NewInMemoryBadgerStore("test", infra.JSON)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func lockedSnapshot(t *testing.T, round uint64, tickets ...model.Ticket) Snapshot {
	t.Helper()
	l := NewLedger(1, round)
	for _, tk := range tickets {
		_, err := l.Join(tk.Amount, Bettor{Username: tk.Username, WalletAddress: tk.WalletAddress})
		require.NoError(t, err)
	}
	require.True(t, l.Tick())
	return l.Snapshot()
}

func TestSettle_ThreeTicketScenario(t *testing.T) {
	kv := newKV(t)
	rooms := roomstore.NewRoomStore(kv)
	payouts := payoutstore.NewPayoutStore(kv)
	s := NewSettler("main", rooms, &fixedDrawer{u: 0.9}, 10)

	snap := lockedSnapshot(t, 1, abcTickets()...)
	require.Equal(t, enum.RoundStateSettling, snap.State)

	res, err := s.Settle(context.Background(), snap, defaultBias(), &fairness.Commitment{Round: 1}, nil)
	require.NoError(t, err)

	w := res.Winner
	assert.Equal(t, "C", w.Username)
	assert.Equal(t, "wallet-c", w.WalletAddress)
	assert.True(t, w.Pot.Equal(sol("4.0")))
	assert.True(t, w.Amount.Equal(sol("3.8")), w.Amount.String())
	assert.Equal(t, 50.0, w.Chance)
	assert.Equal(t, 5.0, w.HouseEdge)
	assert.Equal(t, model.PayoutPending, w.PayoutStatus)

	require.NotNil(t, res.Payout)
	assert.Equal(t, "main-1", res.Payout.GameID())
	assert.True(t, res.Payout.Amount.Equal(sol("3.8")))

	stored, err := payouts.Get("main", 1)
	require.NoError(t, err)
	assert.Equal(t, model.PayoutPending, stored.Status)
	assert.Equal(t, "wallet-c", stored.Destination)

	history, err := rooms.GetWinners("main")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "C", history[0].Username)

	last, err := rooms.GetLastRound("main")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
}

func TestSettle_NoTickets(t *testing.T) {
	s := NewSettler("main", roomstore.NewRoomStore(newKV(t)), &fixedDrawer{}, 10)
	_, err := s.Settle(context.Background(), Snapshot{Round: 1}, defaultBias(), &fairness.Commitment{Round: 1}, nil)
	assert.ErrorIs(t, err, ErrNoActiveTickets)
}

func TestSettle_AnonymousWinnerIsUnclaimable(t *testing.T) {
	kv := newKV(t)
	s := NewSettler("main", roomstore.NewRoomStore(kv), &fixedDrawer{u: 0.1}, 10)

	snap := lockedSnapshot(t, 3, ticket("anon", "", "1"))
	res, err := s.Settle(context.Background(), snap, defaultBias(), &fairness.Commitment{Round: 3}, nil)
	require.NoError(t, err)

	assert.Equal(t, model.PayoutUnclaimable, res.Winner.PayoutStatus)
	assert.Nil(t, res.Payout)

	_, err = payoutstore.NewPayoutStore(kv).Get("main", 3)
	assert.ErrorIs(t, err, payoutstore.ErrNotFound)
}

func TestSettle_FullHouseEdgeIsUnclaimable(t *testing.T) {
	s := NewSettler("main", roomstore.NewRoomStore(newKV(t)), &fixedDrawer{u: 0.1}, 10)
	cfg := defaultBias()
	cfg.HouseEdge = 100

	res, err := s.Settle(context.Background(), lockedSnapshot(t, 1, abcTickets()...), cfg, &fairness.Commitment{Round: 1}, nil)
	require.NoError(t, err)
	assert.True(t, res.Winner.Amount.IsZero())
	assert.Equal(t, model.PayoutUnclaimable, res.Winner.PayoutStatus)
	assert.Nil(t, res.Payout)
}

func TestSettle_StoreFailureReturnsError(t *testing.T) {
	store := &flakyStore{Store: roomstore.NewRoomStore(newKV(t)), fails: 1}
	s := NewSettler("main", store, &fixedDrawer{u: 0.1}, 10)

	history := []model.Winner{{RoundID: 0, Username: "old"}}
	_, err := s.Settle(context.Background(), lockedSnapshot(t, 1, abcTickets()...), defaultBias(), &fairness.Commitment{Round: 1}, history)
	require.Error(t, err)
	assert.Len(t, history, 1, "caller history untouched")

	res, err := s.Settle(context.Background(), lockedSnapshot(t, 1, abcTickets()...), defaultBias(), &fairness.Commitment{Round: 1}, history)
	require.NoError(t, err)
	assert.Len(t, res.History, 2)
}

func TestSettle_HistoryBounded(t *testing.T) {
	rooms := roomstore.NewRoomStore(newKV(t))
	s := NewSettler("main", rooms, &fixedDrawer{u: 0.5}, 10)

	var history []model.Winner
	for round := uint64(1); round <= 15; round++ {
		res, err := s.Settle(context.Background(), lockedSnapshot(t, round, abcTickets()...), defaultBias(), &fairness.Commitment{Round: round}, history)
		require.NoError(t, err)
		history = res.History
	}

	require.Len(t, history, 10)
	assert.Equal(t, uint64(15), history[0].RoundID)
	assert.Equal(t, uint64(6), history[9].RoundID)

	stored, err := rooms.GetWinners("main")
	require.NoError(t, err)
	assert.Len(t, stored, 10)
	assert.Equal(t, uint64(15), stored[0].RoundID)
}

func TestSettle_PayoutNeverExceedsPot(t *testing.T) {
	s := NewSettler("main", roomstore.NewRoomStore(newKV(t)), &fixedDrawer{u: 0.3}, 10)
	for i, edge := range []float64{-5, 0, 0.5, 5, 33.333, 99.9, 100, 250} {
		cfg := defaultBias()
		cfg.HouseEdge = edge
		round := uint64(i + 1)
		res, err := s.Settle(context.Background(), lockedSnapshot(t, round, abcTickets()...), cfg, &fairness.Commitment{Round: round}, nil)
		require.NoError(t, err)
		assert.True(t, res.Winner.Amount.GreaterThanOrEqual(sol("0")), "edge %v", edge)
		assert.True(t, res.Winner.Amount.LessThanOrEqual(res.Winner.Pot), "edge %v", edge)
	}
}

func TestPrependHistory(t *testing.T) {
	var h []model.Winner
	for i := uint64(1); i <= 4; i++ {
		h = PrependHistory(h, model.Winner{RoundID: i}, 3)
	}
	require.Len(t, h, 3)
	assert.Equal(t, []uint64{4, 3, 2}, []uint64{h[0].RoundID, h[1].RoundID, h[2].RoundID})

	h = PrependHistory(nil, model.Winner{RoundID: 1}, 0)
	assert.Len(t, h, 1)
}

func TestSettle_ClearsForcedWinnerWithTheRound(t *testing.T) {
	rooms := roomstore.NewRoomStore(newKV(t))
	armed := defaultBias()
	armed.ForceWinOnNextRound = true
	armed.ForcedWinnerAddress = "wallet-a"
	armed.FavoredWallets = []string{"wallet-b"}
	require.NoError(t, rooms.SaveBiasConfig("main", armed))

	s := NewSettler("main", rooms, &fixedDrawer{u: 0.9}, 10)
	res, err := s.Settle(context.Background(), lockedSnapshot(t, 1, abcTickets()...), armed, &fairness.Commitment{Round: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", res.Winner.Username)
	assert.True(t, res.Winner.Forced)

	require.NotNil(t, res.Bias)
	assert.False(t, res.Bias.ForceWinOnNextRound)
	assert.Empty(t, res.Bias.ForcedWinnerAddress)

	stored, found, err := rooms.GetBiasConfig("main")
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, stored.ForceWinOnNextRound)
	assert.Empty(t, stored.ForcedWinnerAddress)
	assert.Equal(t, []string{"wallet-b"}, stored.FavoredWallets)
	// the caller's snapshot is untouched
	assert.Equal(t, "wallet-a", armed.ForcedWinnerAddress)
}

func TestSettle_FailedPersistKeepsForcedWinnerArmed(t *testing.T) {
	store := &flakyStore{Store: roomstore.NewRoomStore(newKV(t)), fails: 1}
	armed := defaultBias()
	armed.ForcedWinnerAddress = "wallet-a"
	require.NoError(t, store.SaveBiasConfig("main", armed))

	s := NewSettler("main", store, &fixedDrawer{u: 0.9}, 10)
	_, err := s.Settle(context.Background(), lockedSnapshot(t, 1, abcTickets()...), armed, &fairness.Commitment{Round: 1}, nil)
	require.Error(t, err)

	stored, _, err := store.GetBiasConfig("main")
	require.NoError(t, err)
	assert.Equal(t, "wallet-a", stored.ForcedWinnerAddress)

	winners, err := store.GetWinners("main")
	require.NoError(t, err)
	assert.Empty(t, winners)
}

func TestSettle_NothingArmedLeavesBiasAlone(t *testing.T) {
	s := NewSettler("main", roomstore.NewRoomStore(newKV(t)), &fixedDrawer{u: 0.9}, 10)
	res, err := s.Settle(context.Background(), lockedSnapshot(t, 1, abcTickets()...), defaultBias(), &fairness.Commitment{Round: 1}, nil)
	require.NoError(t, err)
	assert.Nil(t, res.Bias)
}
