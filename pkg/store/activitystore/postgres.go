package activitystore

import (
	"context"
	"fmt"

	"github.com/fystack/jackpot-engine/pkg/common/config"
	"github.com/fystack/jackpot-engine/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS jackpot_activity (
	id             UUID PRIMARY KEY,
	room_id        TEXT        NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	wallet_address TEXT        NOT NULL DEFAULT '',
	is_internal    BOOLEAN     NOT NULL DEFAULT FALSE,
	action         TEXT        NOT NULL,
	amount         NUMERIC(30, 9) NOT NULL DEFAULT 0,
	reference      TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_jackpot_activity_room_created
	ON jackpot_activity (room_id, created_at DESC);
`

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, pings and applies the schema.
func NewPostgresStore(ctx context.Context, cfg config.PostgresConfig) (Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply activity schema: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Append(ctx context.Context, entry model.ActivityEntry) error {
	if entry.RoomID == "" {
		return fmt.Errorf("activity entry room is required")
	}
	prepare(&entry)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jackpot_activity (id, room_id, created_at, wallet_address, is_internal, action, amount, reference)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8)`,
		entry.ID, entry.RoomID, entry.Timestamp, entry.WalletAddress, entry.IsInternal,
		string(entry.Action), entry.Amount.String(), entry.Reference,
	)
	return err
}

func (s *postgresStore) List(ctx context.Context, room string, limit int) ([]model.ActivityEntry, error) {
	query := `
		SELECT id::text, room_id, created_at, wallet_address, is_internal, action, amount::text, reference
		FROM jackpot_activity
		WHERE room_id = $1
		ORDER BY created_at DESC, id DESC`
	args := []any{room}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ActivityEntry{}
	for rows.Next() {
		var (
			e      model.ActivityEntry
			action string
			amount string
		)
		if err := rows.Scan(&e.ID, &e.RoomID, &e.Timestamp, &e.WalletAddress, &e.IsInternal, &action, &amount, &e.Reference); err != nil {
			return nil, err
		}
		e.Action = model.ActivityAction(action)
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("decode amount of %s: %w", e.ID, err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *postgresStore) Clear(ctx context.Context, room string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM jackpot_activity WHERE room_id = $1`, room)
		return err
	})
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
