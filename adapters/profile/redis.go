package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
)

const redisKeyPrefix = "profile:"

// RedisStore reads profiles from Redis. Each profile is a JSON value under
// profile:<phone_number>.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var _ repositories.ProfileStore = (*RedisStore)(nil)

// GetByPhone implements repositories.ProfileStore.
func (s *RedisStore) GetByPhone(ctx context.Context, phoneNumber string) (*entities.Profile, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+phoneNumber).Result()
	if err == redis.Nil {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", phoneNumber, err)
	}

	var profile entities.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile %s: %w", phoneNumber, err)
	}
	return &profile, nil
}

// Put stores a profile, mainly used by seed scripts and tests.
func (s *RedisStore) Put(ctx context.Context, profile entities.Profile) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+profile.PhoneNumber, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store profile %s: %w", profile.PhoneNumber, err)
	}
	return nil
}
