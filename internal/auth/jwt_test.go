package auth

import (
	"testing"
	"time"
)

func TestClientTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret")

	token, expiresAt, err := issuer.GenerateClientToken("client-123")
	if err != nil {
		t.Fatalf("GenerateClientToken failed: %v", err)
	}
	if time.Until(expiresAt) < 23*time.Hour {
		t.Errorf("Unexpected expiry: %v", expiresAt)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.ClientID != "client-123" {
		t.Errorf("Expected client ID client-123, got %s", claims.ClientID)
	}
	if claims.Role != RoleClient {
		t.Errorf("Expected role %s, got %s", RoleClient, claims.Role)
	}
}

func TestServiceTokenRole(t *testing.T) {
	issuer := NewIssuer("test-secret")

	token, _, err := issuer.GenerateServiceToken()
	if err != nil {
		t.Fatalf("GenerateServiceToken failed: %v", err)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Role != RoleService {
		t.Errorf("Expected role %s, got %s", RoleService, claims.Role)
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewIssuer("secret-a")
	other := NewIssuer("secret-b")

	token, _, err := issuer.GenerateClientToken("client-123")
	if err != nil {
		t.Fatalf("GenerateClientToken failed: %v", err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Error("Expected validation failure with wrong secret")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	issuer := NewIssuer("test-secret")
	if _, err := issuer.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected validation failure for garbage token")
	}
}
