package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/aceplus/internal/model"
	"github.com/pavelanni/aceplus/internal/store"
)

func newTestContext(t *testing.T, nav Navigator) (*Context, *store.Store) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, nav), s
}

func signedToken(t *testing.T, exp *time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{"sub": "S123"}
	if exp != nil {
		claims["exp"] = exp.Unix()
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestSetAndClear(t *testing.T) {
	c, s := newTestContext(t, nil)

	if c.Authenticated() {
		t.Fatal("fresh context should not be authenticated")
	}

	err := c.Set(model.LoginResponse{Token: "opaque-token", UserID: "S123", Version: "2.1"})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := c.Token(); got != "opaque-token" {
		t.Errorf("Token() = %q, want opaque-token", got)
	}
	if got := c.UserID(); got != "S123" {
		t.Errorf("UserID() = %q, want S123", got)
	}
	if v, _ := s.GetState(store.KeyVersion); v != "2.1" {
		t.Errorf("version = %q, want 2.1", v)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Authenticated() {
		t.Error("expected logged out after Clear")
	}
	if c.UserID() != "" {
		t.Error("expected user id removed after Clear")
	}
}

func TestSetRequiresToken(t *testing.T) {
	c, _ := newTestContext(t, nil)
	if err := c.Set(model.LoginResponse{UserID: "S1"}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestHandleUnauthorized(t *testing.T) {
	var navigated []string
	c, _ := newTestContext(t, NavigatorFunc(func(path string) {
		navigated = append(navigated, path)
	}))

	if err := c.Set(model.LoginResponse{Token: "tok", UserID: "S1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c.HandleUnauthorized()

	if c.Token() != "" || c.UserID() != "" {
		t.Error("expected token and user id wiped")
	}
	if len(navigated) != 1 || navigated[0] != LoginPath {
		t.Errorf("navigated = %v, want [%s]", navigated, LoginPath)
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"opaque", "not-a-jwt", true},
		{"jwt without exp", signedToken(t, nil), true},
		{"jwt valid", signedToken(t, &future), true},
		{"jwt expired", signedToken(t, &past), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(t, nil)
			c.now = func() time.Time { return now }
			if err := c.Set(model.LoginResponse{Token: tt.token, UserID: "S1"}); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if got := c.Authenticated(); got != tt.want {
				t.Errorf("Authenticated() = %v, want %v", got, tt.want)
			}
		})
	}
}
