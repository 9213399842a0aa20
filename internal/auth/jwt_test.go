package auth

import (
	"errors"
	"testing"
	"time"
)

func TestJWTManagerGenerateAndValidate(t *testing.T) {
	manager := NewJWTManager("test-secret", 10*time.Minute)

	token, err := manager.GenerateToken("ops", []string{ScopeOperate})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.Operator != "ops" || claims.Subject != "ops" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.HasScope(ScopeOperate) || !claims.HasScope(ScopeRead) {
		t.Fatalf("expected operate to imply read: %+v", claims.Scopes)
	}
}

func TestReadScopeDoesNotImplyOperate(t *testing.T) {
	manager := NewJWTManager("test-secret", time.Minute)
	token, err := manager.GenerateToken("viewer", []string{ScopeRead})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if claims.HasScope(ScopeOperate) {
		t.Fatalf("read scope must not grant operate")
	}
}

func TestValidateRejectsWrongSecretAndExpiry(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Minute).GenerateToken("ops", []string{ScopeRead})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := NewJWTManager("secret-b", time.Minute).ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for wrong secret, got %v", err)
	}

	expired, err := NewJWTManager("secret-a", -time.Minute).GenerateToken("ops", []string{ScopeRead})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	if _, err := NewJWTManager("secret-a", time.Minute).ValidateToken(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestGenerateTokenRejectsUnknownScope(t *testing.T) {
	if _, err := NewJWTManager("s", time.Minute).GenerateToken("ops", []string{"admin"}); err == nil {
		t.Fatalf("expected unknown scope to be rejected")
	}
}
