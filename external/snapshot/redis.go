package snapshot

import (
	"context"
	"errors"

	"github.com/foxseedlab/modbot/internal/snapshot"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "modbot:snapshots"

// RedisBackend keeps snapshots in a capped list, newest first.
type RedisBackend struct {
	client *redis.Client
	key    string
	keep   int
}

func NewRedisBackend(client *redis.Client, key string, keep int) *RedisBackend {
	return &RedisBackend{client: client, key: key, keep: keep}
}

func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	doc, err := b.client.LIndex(ctx, b.key, 0).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, snapshot.ErrNoSnapshot
		}
		return nil, err
	}
	return doc, nil
}

func (b *RedisBackend) Save(ctx context.Context, doc []byte) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, b.key, doc)
		pipe.LTrim(ctx, b.key, 0, int64(b.keep-1))
		return nil
	})
	return err
}

func (b *RedisBackend) Shutdown() error {
	return b.client.Close()
}
