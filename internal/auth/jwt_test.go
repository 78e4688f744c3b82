package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	manager := NewJWTManager("test-secret-key", 15*time.Minute)

	token, err := manager.GenerateToken("user-abc12345", "admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != "user-abc12345" {
		t.Errorf("UserID = %q, want user-abc12345", claims.UserID)
	}
	if claims.Username != "admin" {
		t.Errorf("Username = %q, want admin", claims.Username)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager("secret-one", 15*time.Minute)
	other := NewJWTManager("secret-two", 15*time.Minute)

	token, err := manager.GenerateToken("user-abc12345", "admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Error("expected validation to fail with a different secret")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret-key", -1*time.Minute)
	manager.tokenDuration = -1 * time.Minute

	token, err := manager.GenerateToken("user-abc12345", "admin")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	if _, err := manager.ValidateToken(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	manager := NewJWTManager("test-secret-key", 15*time.Minute)
	if _, err := manager.ValidateToken("not.a.token"); err == nil {
		t.Error("expected garbage token to be rejected")
	}
}
