package repositories

import (
	"context"
	"errors"

	"github.com/sonora-voice/bridge/domain/entities"
)

// ErrNotFound is returned by stores when the requested record does not
// exist. Callers translate it into a conversational response instead of
// failing the session.
var ErrNotFound = errors.New("record not found")

// KnowledgeBase answers free-text queries with scored passages.
type KnowledgeBase interface {
	Search(ctx context.Context, query string) (*entities.KnowledgeAnswer, error)
}

// CustomerStore looks up customer records. Name matching is
// case-insensitive.
type CustomerStore interface {
	GetByName(ctx context.Context, name string) (*entities.Customer, error)
}

// ProfileStore looks up account profiles by digits-only phone number.
type ProfileStore interface {
	GetByPhone(ctx context.Context, phoneNumber string) (*entities.Profile, error)
}

// TranscriptRepository persists completed session transcripts.
type TranscriptRepository interface {
	Save(ctx context.Context, transcript *entities.Transcript) error
	GetBySessionID(ctx context.Context, sessionID string) (*entities.Transcript, error)
}
