package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxseedlab/modbot/internal/snapshot"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresBackend struct {
	pool *pgxpool.Pool
	keep int
}

func NewPostgresBackend(pool *pgxpool.Pool, keep int) *PostgresBackend {
	return &PostgresBackend{pool: pool, keep: keep}
}

func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var doc string
	err := b.pool.QueryRow(ctx,
		`SELECT document::text FROM modbot_snapshots ORDER BY id DESC LIMIT 1`).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, snapshot.ErrNoSnapshot
		}
		return nil, err
	}
	return []byte(doc), nil
}

func (b *PostgresBackend) Save(ctx context.Context, doc []byte) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx,
		`INSERT INTO modbot_snapshots (document) VALUES ($1::jsonb)`, string(doc)); err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`DELETE FROM modbot_snapshots
		 WHERE id NOT IN (SELECT id FROM modbot_snapshots ORDER BY id DESC LIMIT $1)`, b.keep); err != nil {
		return fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tx.Commit(ctx)
}

func (b *PostgresBackend) Shutdown() {
	b.pool.Close()
}
