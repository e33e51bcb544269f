package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/post-feed/internal/core/ports"
)

// RedisPostIndex stocke l'index user -> posts dans un Sorted Set par user,
// score = date de création (le plus récent en tête).
type RedisPostIndex struct {
	client redis.UniversalClient
}

func NewRedisPostIndex(client redis.UniversalClient) *RedisPostIndex {
	return &RedisPostIndex{client: client}
}

var _ ports.PostIndex = (*RedisPostIndex)(nil)

func indexKey(userID string) string {
	return fmt.Sprintf("user:%s:posts", userID)
}

// Add est idempotent (ZADD sur un membre existant = simple mise à jour du score).
func (r *RedisPostIndex) Add(ctx context.Context, userID string, post *domain.Post) error {
	err := r.client.ZAdd(ctx, indexKey(userID), redis.Z{
		Score:  float64(post.CreatedAt.UnixMicro()),
		Member: post.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: index add: %w", err)
	}
	return nil
}

func (r *RedisPostIndex) Remove(ctx context.Context, userID, postID string) error {
	if err := r.client.ZRem(ctx, indexKey(userID), postID).Err(); err != nil {
		return fmt.Errorf("redis: index remove: %w", err)
	}
	return nil
}

func (r *RedisPostIndex) List(ctx context.Context, userID string) ([]string, error) {
	ids, err := r.client.ZRevRange(ctx, indexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: index list: %w", err)
	}
	return ids, nil
}
