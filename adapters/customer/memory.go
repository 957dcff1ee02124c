// Package customer provides customer record stores. The memory store loads
// a JSON corpus once at startup, matching the deployment where customer
// data ships with the service.
package customer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
)

// corpus is the on-disk layout of the customer data file.
type corpus struct {
	Customers []entities.Customer `json:"customers"`
}

// MemoryStore serves customer lookups from an in-memory snapshot.
type MemoryStore struct {
	mu        sync.RWMutex
	customers []entities.Customer
}

// NewMemoryStore builds a store from a slice of records.
func NewMemoryStore(customers []entities.Customer) *MemoryStore {
	return &MemoryStore{customers: customers}
}

// NewMemoryStoreFromFile loads the JSON corpus at path. A missing or
// malformed file yields an empty store, logged but not fatal.
func NewMemoryStoreFromFile(path string, logger *zap.Logger) *MemoryStore {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Customer data file unavailable, starting empty",
			zap.String("path", path),
			zap.Error(err))
		return NewMemoryStore(nil)
	}

	var c corpus
	if err := json.Unmarshal(data, &c); err != nil {
		logger.Warn("Customer data file unreadable, starting empty",
			zap.String("path", path),
			zap.Error(err))
		return NewMemoryStore(nil)
	}

	logger.Info("Customer data loaded",
		zap.String("path", path),
		zap.Int("count", len(c.Customers)))
	return NewMemoryStore(c.Customers)
}

var _ repositories.CustomerStore = (*MemoryStore)(nil)

// GetByName implements repositories.CustomerStore with a case-insensitive
// exact match.
func (s *MemoryStore) GetByName(ctx context.Context, name string) (*entities.Customer, error) {
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.customers {
		if strings.EqualFold(s.customers[i].Name, name) {
			c := s.customers[i]
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}
