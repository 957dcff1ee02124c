package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/auth"
	"github.com/sonora-voice/bridge/internal/websocket"
)

// Options carries the pieces the HTTP surface depends on.
type Options struct {
	Hub    *websocket.Hub
	Issuer *auth.Issuer

	// APIKey is the shared secret exchanged for client tokens.
	APIKey string

	// DevMode skips token validation on the websocket endpoint.
	DevMode bool
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, opts Options, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"service":  "sonora-bridge",
			"sessions": len(opts.Hub.ActiveSessions()),
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/token", func(c echo.Context) error {
		return issueToken(c, opts, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(c, opts, logger)
	})
}

// issueToken exchanges the shared API key for a client JWT.
func issueToken(c echo.Context, opts Options, logger *zap.Logger) error {
	var req TokenRequest

	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind token request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	if req.APIKey == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "API key is required",
		})
	}

	if opts.APIKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(opts.APIKey)) != 1 {
		logger.Warn("Token request rejected: bad API key")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "authentication_failed",
			Message: "Invalid API key",
		})
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	token, expiresAt, err := opts.Issuer.GenerateClientToken(clientID)
	if err != nil {
		logger.Error("Failed to generate client token",
			zap.String("client_id", clientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Client token issued", zap.String("client_id", clientID))

	return c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		ClientID:  clientID,
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(c echo.Context, opts Options, logger *zap.Logger) error {
	if opts.DevMode {
		logger.Warn("DEV_MODE enabled, skipping websocket authentication")
		return websocket.ServeSession(opts.Hub, c, "dev-client", logger)
	}

	// Extract JWT token from the Authorization header, falling back to the
	// token query parameter for browsers that cannot set headers on
	// websocket dials.
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		token = authHeader[7:]
	}
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := opts.Issuer.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != auth.RoleClient {
		logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only client tokens are allowed for WebSocket connections",
		})
	}

	clientID := claims.ClientID
	if clientID == "" {
		logger.Error("WebSocket connection rejected: missing client ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "Client ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("client_id", clientID))

	return websocket.ServeSession(opts.Hub, c, clientID, logger)
}
