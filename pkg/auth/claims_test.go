package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestGetClaims_Success(t *testing.T) {
	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}}
	ctx := context.WithValue(context.Background(), ClaimsKey, claims)

	got, ok := GetClaims(ctx)
	if !ok {
		t.Fatal("expected claims to be found")
	}
	if got.Subject != "42" {
		t.Errorf("expected subject '42', got %q", got.Subject)
	}
}

func TestGetClaims_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClaimsKey, "not-claims")

	if _, ok := GetClaims(ctx); ok {
		t.Error("expected claims not to be found for wrong type")
	}
}

func TestGetToken(t *testing.T) {
	ctx := context.WithValue(context.Background(), TokenKey, "raw-token")

	token, ok := GetToken(ctx)
	if !ok || token != "raw-token" {
		t.Errorf("expected 'raw-token', got %q (found=%v)", token, ok)
	}
	if _, ok := GetToken(context.Background()); ok {
		t.Error("expected no token in empty context")
	}
}

func TestClaims_UserID(t *testing.T) {
	tests := []struct {
		subject string
		want    int64
		wantErr error
	}{
		{"42", 42, nil},
		{"", 0, ErrMissingSubject},
		{"user-123", 0, ErrInvalidSubject},
		{"0", 0, ErrInvalidSubject},
		{"-7", 0, ErrInvalidSubject},
	}

	for _, tt := range tests {
		c := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: tt.subject}}
		got, err := c.UserID()
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("subject %q: expected %v, got %v", tt.subject, tt.wantErr, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("subject %q: expected %d, got %d (err=%v)", tt.subject, tt.want, got, err)
		}
	}
}

func TestClaims_HasRole(t *testing.T) {
	c := &Claims{Roles: []string{"user", "admin"}}
	if !c.HasRole("admin") {
		t.Error("expected admin role")
	}
	if (&Claims{}).HasRole("admin") {
		t.Error("expected no roles on empty claims")
	}
}

func TestRequireUserID(t *testing.T) {
	if _, err := RequireUserID(context.Background()); err == nil {
		t.Error("expected error without claims")
	}

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "7"}}
	ctx := context.WithValue(context.Background(), ClaimsKey, claims)
	id, err := RequireUserID(ctx)
	if err != nil || id != 7 {
		t.Errorf("expected user 7, got %d (err=%v)", id, err)
	}
}
