// Package session carries per-request caller state. A Session is built once at the
// HTTP boundary and passed explicitly to every service call.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type Session struct {
	RequestID string
	// Username is empty for anonymous callers.
	Username string
	Logger   *zap.Logger
}

// Anonymous returns a session with no user, logging to logger.
func Anonymous(requestID string, logger *zap.Logger) Session {
	return Session{
		RequestID: requestID,
		Logger:    logger.With(zap.String("requestID", requestID)),
	}
}

// WithUser returns a copy of s bound to username.
func (s Session) WithUser(username string) Session {
	s.Username = username
	s.Logger = s.Log().With(zap.String("username", username))
	return s
}

// Log returns the session logger, or a no-op logger for a zero Session.
func (s Session) Log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

var (
	ErrEmptyToken   = errors.New("empty token")
	ErrInvalidToken = errors.New("invalid token")
)

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(username string) (string, time.Time, error) {
	if username == "" {
		return "", time.Time{}, errors.New("username is required")
	}
	now := t.now()
	exp := now.Add(t.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify returns the username a valid token was issued for.
func (t *Tokens) Verify(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyToken
	}
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Username == "" {
		return "", fmt.Errorf("%w: no username claim", ErrInvalidToken)
	}
	return c.Username, nil
}
