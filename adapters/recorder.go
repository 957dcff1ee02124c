// Package adapters bridges domain repositories to the session layer.
package adapters

import (
	"context"
	"time"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
	"github.com/sonora-voice/bridge/internal/bridge"
)

// TranscriptRecorder persists finished session transcripts through any
// transcript repository.
type TranscriptRecorder struct {
	repo repositories.TranscriptRepository
}

// NewTranscriptRecorder wraps a transcript repository.
func NewTranscriptRecorder(repo repositories.TranscriptRepository) *TranscriptRecorder {
	return &TranscriptRecorder{repo: repo}
}

var _ bridge.TranscriptRecorder = (*TranscriptRecorder)(nil)

// SaveTranscript implements the session's recorder contract.
func (r *TranscriptRecorder) SaveTranscript(ctx context.Context, sessionID, clientID string, records []bridge.TranscriptRecord) error {
	entries := make([]entities.TranscriptEntry, len(records))
	for i, rec := range records {
		entries[i] = entities.TranscriptEntry{
			Role:              string(rec.Role),
			Message:           rec.Message,
			EndOfResponse:     rec.EndOfResponse,
			EndOfConversation: rec.EndOfConversation,
		}
	}
	return r.repo.Save(ctx, &entities.Transcript{
		SessionID: sessionID,
		ClientID:  clientID,
		Entries:   entries,
		CreatedAt: time.Now(),
	})
}
