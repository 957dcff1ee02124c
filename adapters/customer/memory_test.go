package customer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
)

func TestMemoryStore_GetByName(t *testing.T) {
	store := NewMemoryStore([]entities.Customer{
		{Name: "Elysabeth Vasilevna", OrderStatus: "Processing", Action: "Awaiting payment"},
		{Name: "Jaime Lopez", OrderStatus: "Shipped", Action: "Arriving Thursday"},
	})

	customer, err := store.GetByName(context.Background(), "JAIME lopez")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if customer.OrderStatus != "Shipped" {
		t.Errorf("Expected order status Shipped, got %s", customer.OrderStatus)
	}

	if _, err := store.GetByName(context.Background(), "Nobody"); err != repositories.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, err := store.GetByName(context.Background(), ""); err == nil {
		t.Error("Expected error for empty name")
	}
}

func TestMemoryStore_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "customers.json")
	payload := `{"customers":[{"Name":"Jaime Lopez","OrderStatus":"Shipped","Action":"Arriving Thursday","LabResult":"Normal"}]}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewMemoryStoreFromFile(path, zap.NewNop())
	customer, err := store.GetByName(context.Background(), "jaime lopez")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if customer.LabResult != "Normal" {
		t.Errorf("Expected lab result Normal, got %s", customer.LabResult)
	}
}

func TestMemoryStore_FromMissingFileIsEmpty(t *testing.T) {
	store := NewMemoryStoreFromFile("/no/such/file.json", zap.NewNop())
	if _, err := store.GetByName(context.Background(), "anyone"); err != repositories.ErrNotFound {
		t.Errorf("Expected ErrNotFound from empty store, got %v", err)
	}
}
