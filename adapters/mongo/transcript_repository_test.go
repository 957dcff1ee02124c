package mongo

import (
	"context"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
)

// TestTranscriptRepository_Integration requires a running MongoDB instance
// (skipped if MONGODB_URI is not set)
func TestTranscriptRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	testDB := client.Database("sonora_test")
	defer func() {
		testDB.Drop(ctx)
	}()

	repo := NewTranscriptRepository(testDB)

	t.Run("SaveAndGetTranscript", func(t *testing.T) {
		transcript := &entities.Transcript{
			SessionID: "session-001",
			ClientID:  "client-abc",
			Entries: []entities.TranscriptEntry{
				{Role: "USER", Message: "what plans do you have?", EndOfResponse: true},
				{Role: "ASSISTANT", Message: "We have three roaming plans.", EndOfResponse: true},
				{EndOfConversation: true},
			},
		}

		if err := repo.Save(ctx, transcript); err != nil {
			t.Fatalf("Failed to save transcript: %v", err)
		}
		if transcript.ID == "" {
			t.Error("Expected generated ID after save")
		}

		retrieved, err := repo.GetBySessionID(ctx, "session-001")
		if err != nil {
			t.Fatalf("Failed to get transcript: %v", err)
		}
		if retrieved.ClientID != "client-abc" {
			t.Errorf("Expected client ID client-abc, got %s", retrieved.ClientID)
		}
		if len(retrieved.Entries) != 3 {
			t.Errorf("Expected 3 entries, got %d", len(retrieved.Entries))
		}
	})

	t.Run("GetMissingTranscript", func(t *testing.T) {
		_, err := repo.GetBySessionID(ctx, "no-such-session")
		if err != repositories.ErrNotFound {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("CustomerLookupCaseInsensitive", func(t *testing.T) {
		customers := testDB.Collection("customers")
		_, err := customers.InsertOne(ctx, entities.Customer{
			Name:        "Jaime Lopez",
			OrderStatus: "Shipped",
			Action:      "Arriving Thursday",
		})
		if err != nil {
			t.Fatalf("Failed to seed customer: %v", err)
		}

		store := NewCustomerStore(testDB)
		customer, err := store.GetByName(ctx, "jaime lopez")
		if err != nil {
			t.Fatalf("Failed to get customer: %v", err)
		}
		if customer.OrderStatus != "Shipped" {
			t.Errorf("Expected order status Shipped, got %s", customer.OrderStatus)
		}
	})
}
