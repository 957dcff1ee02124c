// Package profile provides account-profile stores keyed by digits-only
// phone number.
package profile

import (
	"context"
	"sync"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
)

// MemoryStore keeps profiles in a map, for tests and single-node
// development.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]entities.Profile
}

// NewMemoryStore builds a store from the given profiles.
func NewMemoryStore(profiles []entities.Profile) *MemoryStore {
	m := make(map[string]entities.Profile, len(profiles))
	for _, p := range profiles {
		m[p.PhoneNumber] = p
	}
	return &MemoryStore{profiles: m}
}

var _ repositories.ProfileStore = (*MemoryStore)(nil)

// GetByPhone implements repositories.ProfileStore.
func (s *MemoryStore) GetByPhone(ctx context.Context, phoneNumber string) (*entities.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[phoneNumber]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &p, nil
}

// Put inserts or replaces a profile.
func (s *MemoryStore) Put(profile entities.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.PhoneNumber] = profile
}
