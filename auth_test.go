package main

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T) (*Auth, *DB) {
	t.Helper()
	prev := bcryptCost
	bcryptCost = bcrypt.MinCost
	t.Cleanup(func() { bcryptCost = prev })
	db := openTestDB(t)
	return NewAuth(db), db
}

func TestSecretPersists(t *testing.T) {
	a, db := newTestAuth(t)
	token, err := a.ControlToken("s1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	b := NewAuth(db)
	if _, err := b.Authorize(token, RoleControl, "s1"); err != nil {
		t.Errorf("token should survive an Auth restart: %v", err)
	}
	if _, err := NewAuth(nil).ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("another secret should reject the token: %v", err)
	}
}

func TestOperatorLogin(t *testing.T) {
	a, _ := newTestAuth(t)
	if _, err := a.CreateOperator("x", "pass"); err == nil {
		t.Error("short username should be rejected")
	}
	if _, err := a.CreateOperator("alice", "p"); err == nil {
		t.Error("short password should be rejected")
	}
	if _, err := a.CreateOperator("alice", "secret"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.CreateOperator("alice", "secret"); err == nil {
		t.Error("duplicate operator should be rejected")
	}

	if _, err := a.Login("alice", "wrong", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: %v", err)
	}
	if _, err := a.Login("nobody", "secret", "1.2.3.4"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: %v", err)
	}
	token, err := a.Login("alice", "secret", "1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := a.Authorize(token, RoleOperator, "")
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "alice" {
		t.Errorf("subject = %q", claims.Subject)
	}
	if _, err := a.Authorize(token, RoleControl, ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("operator token used for control: %v", err)
	}
}

func TestLoginRateLimit(t *testing.T) {
	a, _ := newTestAuth(t)
	for i := 0; i < maxLoginAttempts; i++ {
		if _, err := a.Login("ghost", "x", "9.9.9.9"); errors.Is(err, ErrRateLimited) {
			t.Fatalf("attempt %d limited too early", i+1)
		}
	}
	if _, err := a.Login("ghost", "x", "9.9.9.9"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected rate limit, got %v", err)
	}
	if _, err := a.Login("ghost", "x", "8.8.8.8"); errors.Is(err, ErrRateLimited) {
		t.Error("limit should be per IP")
	}
}

func TestControlTokenBoundToSession(t *testing.T) {
	a, _ := newTestAuth(t)
	token, err := a.ControlToken("s1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := a.Authorize(token, RoleControl, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "c1" || claims.SessionID != "s1" {
		t.Errorf("claims = %+v", claims)
	}
	if _, err := a.Authorize(token, RoleControl, "s2"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("token for another session: %v", err)
	}
	if _, err := a.Authorize("garbage", RoleControl, "s1"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage token: %v", err)
	}
}
