package cache

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps per-entry delivery receipts in a Redis hash keyed by phone,
// so a group fanout accumulates one field per recipient.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func receiptKey(entryID int64) string {
	return fmt.Sprintf("receipts:%d", entryID)
}

func (c *RedisCache) StoreReceipt(ctx context.Context, r Receipt) error {
	r.SentAt = r.SentAt.UTC()
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	key := receiptKey(r.EntryID)
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, r.Phone, b)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Receipts returns an entry's receipts ordered by send time, then phone.
func (c *RedisCache) Receipts(ctx context.Context, entryID int64) ([]Receipt, error) {
	vals, err := c.rdb.HGetAll(ctx, receiptKey(entryID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Receipt, 0, len(vals))
	for phone, raw := range vals {
		var r Receipt
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("receipt %s: %w", phone, err)
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b Receipt) int {
		if c := a.SentAt.Compare(b.SentAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Phone, b.Phone)
	})
	return out, nil
}
