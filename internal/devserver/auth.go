package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/aceplus/internal/model"
)

const tokenIssuer = "aceplus-devserver"

// Claims identify the user behind a bearer token. Tokens do not expire,
// like the ones the production backend issues.
type Claims struct {
	Sub     string `json:"sub"`
	Class10 bool   `json:"class10"`
	jwt.RegisteredClaims
}

type ctxKey struct{}

func userFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxKey{}).(*Claims)
	return c
}

func (s *Server) issueToken(u *user) (string, error) {
	claims := &Claims{
		Sub:     u.id,
		Class10: u.class10,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   tokenIssuer,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || c.Sub == "" {
		return nil, errors.New("invalid token claims")
	}
	return c, nil
}

// unauthorized answers in the shape Flask-JWT-Extended uses.
func unauthorized(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": msg})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			unauthorized(w, "Missing Authorization Header")
			return
		}
		claims, err := s.parseToken(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			slog.Debug("rejected token", "error", err)
			unauthorized(w, "Invalid token")
			return
		}
		s.mu.Lock()
		_, known := s.users[claims.Sub]
		s.mu.Unlock()
		if !known {
			unauthorized(w, "Unknown user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "User ID and password are required")
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.UserID]
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid User ID")
		return
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(req.Password)); err != nil {
		slog.Warn("login failed", "user", req.UserID)
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	s.writeLogin(w, http.StatusOK, u)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil || req.UserID == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "User ID and password are required")
		return
	}
	if err := s.addUser(Account{ID: req.UserID, Password: req.Password}); err != nil {
		writeMessage(w, http.StatusConflict, "User already exists")
		return
	}
	s.mu.Lock()
	u := s.users[req.UserID]
	s.mu.Unlock()
	slog.Info("user registered", "user", u.id)
	s.writeLogin(w, http.StatusCreated, u)
}

func (s *Server) writeLogin(w http.ResponseWriter, status int, u *user) {
	token, err := s.issueToken(u)
	if err != nil {
		slog.Error("issue token", "error", err)
		writeMessage(w, http.StatusInternalServerError, "Error issuing token")
		return
	}
	writeJSON(w, status, model.LoginResponse{
		Message: "Login successful",
		Token:   token,
		UserID:  u.id,
		Version: s.updates[0].Version,
		Class10: u.class10,
	})
}
