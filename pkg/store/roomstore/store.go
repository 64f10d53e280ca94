package roomstore

import (
	"errors"
	"fmt"

	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/fystack/jackpot-engine/pkg/store/payoutstore"
)

const keyRound = "round"

func roomKey(room, name string) string {
	return fmt.Sprintf("%s/%s/%s", constant.KVPrefixRooms, room, name)
}

// Store keeps the durable documents of a room: bias config, winner history and round counter.
type Store interface {
	GetBiasConfig(room string) (model.BiasConfig, bool, error)
	SaveBiasConfig(room string, cfg model.BiasConfig) error

	GetWinners(room string) ([]model.Winner, error)
	SaveWinners(room string, winners []model.Winner) error

	// GetLastRound returns the number of the last settled round, 0 when none.
	GetLastRound(room string) (uint64, error)

	// SaveSettlement writes the history, the round counter and, when not nil,
	// the payout outbox entry and the updated bias config in one batch.
	SaveSettlement(room string, round uint64, winners []model.Winner, payout *model.Payout, bias *model.BiasConfig) error

	Close() error
}

type roomStore struct {
	store infra.KVStore
}

func NewRoomStore(store infra.KVStore) Store {
	return &roomStore{store: store}
}

func (s *roomStore) GetBiasConfig(room string) (model.BiasConfig, bool, error) {
	var cfg model.BiasConfig
	ok, err := s.store.GetAny(roomKey(room, constant.KVKeyBiasConfig), &cfg)
	if err != nil {
		return cfg, false, err
	}
	return cfg, ok, nil
}

func (s *roomStore) SaveBiasConfig(room string, cfg model.BiasConfig) error {
	if room == "" {
		return errors.New("room is required")
	}
	if cfg.FavoredWallets == nil {
		cfg.FavoredWallets = []string{}
	}
	return s.store.SetAny(roomKey(room, constant.KVKeyBiasConfig), cfg)
}

func (s *roomStore) GetWinners(room string) ([]model.Winner, error) {
	winners := []model.Winner{}
	if _, err := s.store.GetAny(roomKey(room, constant.KVKeyWinners), &winners); err != nil {
		return nil, err
	}
	return winners, nil
}

func (s *roomStore) SaveWinners(room string, winners []model.Winner) error {
	if room == "" {
		return errors.New("room is required")
	}
	if winners == nil {
		winners = []model.Winner{}
	}
	return s.store.SetAny(roomKey(room, constant.KVKeyWinners), winners)
}

func (s *roomStore) GetLastRound(room string) (uint64, error) {
	var round uint64
	if _, err := s.store.GetAny(roomKey(room, keyRound), &round); err != nil {
		return 0, err
	}
	return round, nil
}

func (s *roomStore) SaveSettlement(room string, round uint64, winners []model.Winner, payout *model.Payout, bias *model.BiasConfig) error {
	if room == "" {
		return errors.New("room is required")
	}
	if winners == nil {
		winners = []model.Winner{}
	}
	entries := map[string]any{
		roomKey(room, constant.KVKeyWinners): winners,
		roomKey(room, keyRound):              round,
	}
	if payout != nil {
		entries[payoutstore.Key(room, round)] = payout
	}
	if bias != nil {
		cfg := *bias
		if cfg.FavoredWallets == nil {
			cfg.FavoredWallets = []string{}
		}
		entries[roomKey(room, constant.KVKeyBiasConfig)] = cfg
	}
	return s.store.SetAnyBatch(entries)
}

func (s *roomStore) Close() error {
	return s.store.Close()
}
