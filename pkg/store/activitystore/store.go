package activitystore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/common/constant"
	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/google/uuid"
)

// Store is the wallet activity audit log. Entries are append only; Clear is the
// only way to remove them.
type Store interface {
	Append(ctx context.Context, entry model.ActivityEntry) error
	// List returns the most recent entries first. limit <= 0 returns everything.
	List(ctx context.Context, room string, limit int) ([]model.ActivityEntry, error)
	Clear(ctx context.Context, room string) error
	Close() error
}

// New picks the backend configured under activity.backend.
func New(ctx context.Context, cfg config.Config, kv infra.KVStore) (Store, error) {
	switch cfg.Activity.Backend {
	case enum.ActivityBackendPostgres:
		return NewPostgresStore(ctx, cfg.Postgres)
	case enum.ActivityBackendKV, "":
		return NewKVStore(kv), nil
	default:
		return nil, fmt.Errorf("unsupported activity backend: %s", cfg.Activity.Backend)
	}
}

func prepare(entry *model.ActivityEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
}

type kvActivityStore struct {
	store infra.KVStore
}

func NewKVStore(store infra.KVStore) Store {
	return &kvActivityStore{store: store}
}

func roomPrefix(room string) string {
	return fmt.Sprintf("%s/%s/", constant.KVPrefixActivity, room)
}

// entries sort by time inside a room, the id breaks ties
func entryKey(e model.ActivityEntry) string {
	return fmt.Sprintf("%s%020d-%s", roomPrefix(e.RoomID), e.Timestamp.UnixNano(), e.ID)
}

func (s *kvActivityStore) Append(_ context.Context, entry model.ActivityEntry) error {
	if entry.RoomID == "" {
		return fmt.Errorf("activity entry room is required")
	}
	prepare(&entry)
	return s.store.SetAny(entryKey(entry), entry)
}

func (s *kvActivityStore) List(_ context.Context, room string, limit int) ([]model.ActivityEntry, error) {
	pairs, err := s.store.List(roomPrefix(room))
	if err != nil {
		return nil, err
	}
	out := make([]model.ActivityEntry, 0, len(pairs))
	for _, p := range pairs {
		var e model.ActivityEntry
		if err := infra.JSON.Unmarshal(p.Value, &e); err != nil {
			return nil, fmt.Errorf("decode activity %s: %w", p.Key, err)
		}
		out = append(out, e)
	}
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *kvActivityStore) Clear(_ context.Context, room string) error {
	pairs, err := s.store.List(roomPrefix(room))
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := s.store.Delete(p.Key); err != nil {
			return err
		}
	}
	return nil
}

// The KV store is shared with the rest of the engine and closed by its owner.
func (s *kvActivityStore) Close() error {
	return nil
}
