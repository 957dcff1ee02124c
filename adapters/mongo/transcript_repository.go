package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
)

type TranscriptRepository struct {
	collection *mongo.Collection
}

// NewTranscriptRepository creates a new MongoDB transcript repository
func NewTranscriptRepository(db *mongo.Database) repositories.TranscriptRepository {
	return &TranscriptRepository{
		collection: db.Collection("transcripts"),
	}
}

// Save implements repositories.TranscriptRepository
func (r *TranscriptRepository) Save(ctx context.Context, transcript *entities.Transcript) error {
	if transcript == nil {
		return errors.New("transcript cannot be nil")
	}
	if err := transcript.Validate(); err != nil {
		return err
	}

	if transcript.CreatedAt.IsZero() {
		transcript.CreatedAt = time.Now()
	}

	doc := bson.M{
		"session_id": transcript.SessionID,
		"client_id":  transcript.ClientID,
		"entries":    transcript.Entries,
		"created_at": transcript.CreatedAt,
	}

	result, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		transcript.ID = oid.Hex()
	}

	return nil
}

// GetBySessionID implements repositories.TranscriptRepository
func (r *TranscriptRepository) GetBySessionID(ctx context.Context, sessionID string) (*entities.Transcript, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var transcript entities.Transcript
	err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&transcript)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transcript for session %s: %w", sessionID, err)
	}

	return &transcript, nil
}

// CustomerStore reads customer records from the customers collection.
type CustomerStore struct {
	collection *mongo.Collection
}

// NewCustomerStore creates a MongoDB-backed customer store
func NewCustomerStore(db *mongo.Database) repositories.CustomerStore {
	return &CustomerStore{
		collection: db.Collection("customers"),
	}
}

// GetByName implements repositories.CustomerStore with a case-insensitive
// exact match on the name field.
func (s *CustomerStore) GetByName(ctx context.Context, name string) (*entities.Customer, error) {
	if name == "" {
		return nil, errors.New("name cannot be empty")
	}

	filter := bson.M{"name": bson.M{
		"$regex":   fmt.Sprintf("^%s$", escapeRegex(name)),
		"$options": "i",
	}}

	var customer entities.Customer
	err := s.collection.FindOne(ctx, filter).Decode(&customer)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get customer %s: %w", name, err)
	}

	return &customer, nil
}

// escapeRegex quotes regex metacharacters so customer names are matched
// literally.
func escapeRegex(s string) string {
	const meta = `\.+*?()|[]{}^$`
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(meta); j++ {
			if s[i] == meta[j] {
				out = append(out, '\\')
				break
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}
