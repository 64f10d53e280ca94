package payoutstore

import (
	"testing"
	"time"

	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/kvstore"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_IsOrdered(t *testing.T) {
	assert.Equal(t, "payouts/main/00000000000000000009", Key("main", 9))
	assert.Less(t, Key("main", 9), Key("main", 10))
}

func TestPayoutStore_ListByStatus(t *testing.T) {
	kv, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	require.NoError(t, err)
	s := NewPayoutStore(kv)
	defer s.Close()

	base := time.Now().UTC()
	for i, st := range []model.PayoutStatus{model.PayoutPending, model.PayoutPaid, model.PayoutPending} {
		room := "main"
		if i == 2 {
			room = "highroller"
		}
		require.NoError(t, s.Save(&model.Payout{
			RoomID:    room,
			RoundID:   uint64(i + 1),
			Amount:    decimal.NewFromInt(1),
			Status:    st,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	pending, err := s.ListByStatus(model.PayoutPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "main", pending[0].RoomID)
	assert.Equal(t, "highroller", pending[1].RoomID)

	mainPayouts, err := s.List("main")
	require.NoError(t, err)
	assert.Len(t, mainPayouts, 2)

	_, err = s.Get("main", 99)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.Save(&model.Payout{}))
}
