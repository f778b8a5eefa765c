// Package auth holds the process-wide authentication context: the bearer
// token, the user it belongs to, and the hook that runs when the server
// rejects the token.
package auth

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pavelanni/aceplus/internal/model"
	"github.com/pavelanni/aceplus/internal/store"
)

// LoginPath is where callers are sent after the credentials are wiped.
const LoginPath = "/login"

// Storage is the durable key-value state the context reads and writes.
type Storage interface {
	GetState(key string) (string, error)
	SetState(key, value string) error
	DeleteState(key string) error
}

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Context is safe for concurrent use.
type Context struct {
	mu        sync.Mutex
	storage   Storage
	navigator Navigator
	now       func() time.Time
}

// New creates a Context over storage. A nil navigator makes the unauthorized
// hook only wipe credentials.
func New(storage Storage, navigator Navigator) *Context {
	return &Context{storage: storage, navigator: navigator, now: time.Now}
}

// Token returns the stored bearer token, or "" when the user is logged out or
// the token is a JWT whose exp claim has passed.
func (c *Context) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	token, err := c.storage.GetState(store.KeyToken)
	if err != nil {
		slog.Warn("read auth token", "error", err)
		return ""
	}
	if token == "" || c.expired(token) {
		return ""
	}
	return token
}

// Authenticated reports whether a usable token exists.
func (c *Context) Authenticated() bool {
	return c.Token() != ""
}

// UserID returns the stored user id.
func (c *Context) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.storage.GetState(store.KeyUserID)
	if err != nil {
		slog.Warn("read user id", "error", err)
	}
	return id
}

// Set stores the credentials from a successful login.
func (c *Context) Set(resp model.LoginResponse) error {
	if resp.Token == "" {
		return fmt.Errorf("login response carries no token")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.storage.SetState(store.KeyToken, resp.Token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := c.storage.SetState(store.KeyUserID, resp.UserID); err != nil {
		return fmt.Errorf("store user id: %w", err)
	}
	if resp.Version != "" {
		if err := c.storage.SetState(store.KeyVersion, resp.Version); err != nil {
			return fmt.Errorf("store version: %w", err)
		}
	}
	return nil
}

// Clear removes the token and user id.
func (c *Context) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clearLocked()
}

func (c *Context) clearLocked() error {
	if err := c.storage.DeleteState(store.KeyToken); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if err := c.storage.DeleteState(store.KeyUserID); err != nil {
		return fmt.Errorf("delete user id: %w", err)
	}
	return nil
}

// HandleUnauthorized wipes the credentials and navigates to the login view.
// The gateway calls it for every 401 response.
func (c *Context) HandleUnauthorized() {
	c.mu.Lock()
	err := c.clearLocked()
	nav := c.navigator
	c.mu.Unlock()

	if err != nil {
		slog.Error("wipe credentials after 401", "error", err)
	}
	slog.Info("credentials rejected, redirecting", "path", LoginPath)
	if nav != nil {
		nav.Navigate(LoginPath)
	}
}

// expired reports whether token is a JWT with an exp claim in the past.
// Opaque tokens and JWTs without exp never expire client-side.
func (c *Context) expired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return c.now().After(exp.Time)
}
