package profile

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
)

func TestMemoryStore_GetByPhone(t *testing.T) {
	store := NewMemoryStore([]entities.Profile{
		{PhoneNumber: "5550100", Name: "Jaime Lopez", AccountStatus: "active"},
	})

	p, err := store.GetByPhone(context.Background(), "5550100")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if p.Name != "Jaime Lopez" {
		t.Errorf("Expected Jaime Lopez, got %s", p.Name)
	}

	if _, err := store.GetByPhone(context.Background(), "9999999"); err != repositories.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestRedisStore_Integration requires a running Redis instance (skipped if
// REDIS_ADDR is not set)
func TestRedisStore_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("Skipping Redis integration test - REDIS_ADDR not set")
	}

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisStore(client)

	profile := entities.Profile{
		PhoneNumber:   "5550199",
		Name:          "Elysabeth Vasilevna",
		AccountStatus: "active",
		Membership:    "gold",
	}
	if err := store.Put(ctx, profile); err != nil {
		t.Fatalf("Failed to store profile: %v", err)
	}
	defer client.Del(ctx, redisKeyPrefix+profile.PhoneNumber)

	retrieved, err := store.GetByPhone(ctx, "5550199")
	if err != nil {
		t.Fatalf("Failed to get profile: %v", err)
	}
	if retrieved.Membership != "gold" {
		t.Errorf("Expected membership gold, got %s", retrieved.Membership)
	}

	if _, err := store.GetByPhone(ctx, "0000000"); err != repositories.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
