package api

import "time"

// TokenRequest represents the request payload for token exchange
type TokenRequest struct {
	APIKey   string `json:"api_key" validate:"required"`
	ClientID string `json:"client_id"`
}

// TokenResponse represents the response payload for token exchange
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ClientID  string    `json:"client_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
