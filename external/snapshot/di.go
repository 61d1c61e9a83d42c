package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/foxseedlab/modbot/internal/config"
	"github.com/foxseedlab/modbot/internal/snapshot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
)

const backendInitTimeout = 15 * time.Second

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (snapshot.Backend, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(context.Background(), backendInitTimeout)
		defer cancel()

		switch cfg.SnapshotBackend {
		case config.SnapshotBackendPostgres:
			return newPostgresFromURL(ctx, cfg.DatabaseURL, cfg.SnapshotKeep)
		case config.SnapshotBackendRedis:
			return newRedisFromURL(ctx, cfg.RedisURL, cfg.SnapshotKeep)
		default:
			return NewFileBackend(cfg.SnapshotPath, cfg.SnapshotKeep), nil
		}
	})
}

func newPostgresFromURL(ctx context.Context, url string, keep int) (*PostgresBackend, error) {
	p, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigration(ctx, p); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to run migration: %w", err)
	}
	return NewPostgresBackend(p, keep), nil
}

func newRedisFromURL(ctx context.Context, url string, keep int) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisBackend(client, defaultRedisKey, keep), nil
}
