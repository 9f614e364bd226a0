// Package redisrepo keeps page snapshots as JSON values in one Redis hash.
package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"live-service/internal/page"
)

const DefaultKey = "live:pages"

type Repository struct {
	rdb *redis.Client
	key string
}

func New(rdb *redis.Client, key string) *Repository {
	if key == "" {
		key = DefaultKey
	}
	return &Repository{rdb: rdb, key: key}
}

func (r *Repository) Save(ctx context.Context, s page.Snapshot) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", s.ChannelID, err)
	}
	return r.rdb.HSet(ctx, r.key, s.ChannelID, b).Err()
}

func (r *Repository) Delete(ctx context.Context, channelID string) error {
	return r.rdb.HDel(ctx, r.key, channelID).Err()
}

func (r *Repository) LoadAll(ctx context.Context) ([]page.Snapshot, error) {
	vals, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]page.Snapshot, 0, len(vals))
	for id, raw := range vals {
		var s page.Snapshot
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
		}
		out = append(out, s)
	}
	return out, nil
}
