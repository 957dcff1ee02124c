package websocket

import (
	"time"

	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/bridge"
)

// SessionCleanupService closes sessions that have exceeded the hard
// lifetime cap. The per-session idle timeout handles quiet connections;
// this catches the pathological always-talking ones.
type SessionCleanupService struct {
	hub         *Hub
	maxLifetime time.Duration
	logger      *zap.Logger
	stopChan    chan struct{}
}

// NewSessionCleanupService creates a new session cleanup service
func NewSessionCleanupService(hub *Hub, maxLifetime time.Duration, logger *zap.Logger) *SessionCleanupService {
	if maxLifetime <= 0 {
		maxLifetime = 2 * time.Hour
	}
	return &SessionCleanupService{
		hub:         hub,
		maxLifetime: maxLifetime,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *SessionCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Session cleanup service started",
		zap.Duration("maxLifetime", s.maxLifetime))
}

// Stop gracefully stops the cleanup service
func (s *SessionCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Session cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *SessionCleanupService) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup closes every session past the lifetime cap.
func (s *SessionCleanupService) runCleanup() {
	cutoff := time.Now().Add(-s.maxLifetime)

	s.hub.mu.RLock()
	var expired []*Client
	for _, client := range s.hub.clients {
		if client.session != nil && client.startedAt.Before(cutoff) {
			expired = append(expired, client)
		}
	}
	s.hub.mu.RUnlock()

	for _, client := range expired {
		s.logger.Info("Closing session past lifetime cap",
			zap.String("sessionID", client.sessionID),
			zap.Time("startedAt", client.startedAt))
		client.session.Close(&bridge.IdleTimeoutError{Idle: s.maxLifetime.String()})
	}
}
