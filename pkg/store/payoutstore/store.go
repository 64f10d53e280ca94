package payoutstore

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/model"
)

// ErrNotFound is returned when no outbox entry exists for a room round.
var ErrNotFound = errors.New("payout not found")

// Key is the outbox key of a round. Rounds are zero padded so prefix listings stay ordered.
func Key(room string, round uint64) string {
	return fmt.Sprintf("%s/%s/%020d", constant.KVPrefixPayouts, room, round)
}

func roomPrefix(room string) string {
	return fmt.Sprintf("%s/%s/", constant.KVPrefixPayouts, room)
}

type Store interface {
	Get(room string, round uint64) (*model.Payout, error)
	Save(p *model.Payout) error
	List(room string) ([]*model.Payout, error)
	ListByStatus(status model.PayoutStatus) ([]*model.Payout, error)
	Close() error
}

type payoutStore struct {
	store infra.KVStore
}

func NewPayoutStore(store infra.KVStore) Store {
	return &payoutStore{store: store}
}

func (s *payoutStore) Get(room string, round uint64) (*model.Payout, error) {
	var p model.Payout
	ok, err := s.store.GetAny(Key(room, round), &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *payoutStore) Save(p *model.Payout) error {
	if p == nil || p.RoomID == "" {
		return errors.New("payout room is required")
	}
	p.UpdatedAt = time.Now().UTC()
	return s.store.SetAny(Key(p.RoomID, p.RoundID), p)
}

func (s *payoutStore) List(room string) ([]*model.Payout, error) {
	return s.list(roomPrefix(room), nil)
}

// ListByStatus scans every room's outbox, oldest first.
func (s *payoutStore) ListByStatus(status model.PayoutStatus) ([]*model.Payout, error) {
	out, err := s.list(constant.KVPrefixPayouts+"/", func(p *model.Payout) bool { return p.Status == status })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *payoutStore) list(prefix string, keep func(*model.Payout) bool) ([]*model.Payout, error) {
	pairs, err := s.store.List(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Payout, 0, len(pairs))
	for _, pair := range pairs {
		var p model.Payout
		if err := infra.JSON.Unmarshal(pair.Value, &p); err != nil {
			return nil, fmt.Errorf("decode payout %s: %w", pair.Key, err)
		}
		if keep == nil || keep(&p) {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (s *payoutStore) Close() error {
	return s.store.Close()
}
