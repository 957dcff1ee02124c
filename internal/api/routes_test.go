package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/internal/auth"
	"github.com/sonora-voice/bridge/internal/websocket"
)

func testServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Hub == nil {
		opts.Hub = websocket.NewHub(websocket.Deps{}, zap.NewNop())
	}
	if opts.Issuer == nil {
		opts.Issuer = auth.NewIssuer("test-secret")
	}
	e := echo.New()
	InitRoutes(e, opts, zap.NewNop())
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return server
}

func TestHealth(t *testing.T) {
	server := testServer(t, Options{APIKey: "k"})

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestIssueToken(t *testing.T) {
	server := testServer(t, Options{APIKey: "top-secret"})

	resp, err := http.Post(server.URL+"/api/v1/auth/token", "application/json",
		strings.NewReader(`{"api_key":"top-secret","client_id":"client-9"}`))
	if err != nil {
		t.Fatalf("Token request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/api/v1/auth/token", "application/json",
		strings.NewReader(`{"api_key":"wrong"}`))
	if err != nil {
		t.Fatalf("Token request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad key, got %d", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/api/v1/auth/token", "application/json",
		strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("Token request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing key, got %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsWithoutToken(t *testing.T) {
	server := testServer(t, Options{APIKey: "k"})

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestWebSocketRejectsServiceToken(t *testing.T) {
	issuer := auth.NewIssuer("test-secret")
	server := testServer(t, Options{APIKey: "k", Issuer: issuer})

	token, _, err := issuer.GenerateServiceToken()
	if err != nil {
		t.Fatalf("GenerateServiceToken failed: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for service token, got %d", resp.StatusCode)
	}
}
