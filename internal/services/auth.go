package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/makors/vender/internal/logger"
	"github.com/makors/vender/internal/utils"
)

// SessionStore persists login tokens with the fingerprint of the secret they were issued for.
type SessionStore interface {
	Put(ctx context.Context, token, fingerprint string) error
	Get(ctx context.Context, token string) (string, bool, error)
	Delete(ctx context.Context, token string) error
}

// AuthService gates the scanner endpoints behind a shared operator secret. Sessions outlive
// restarts in redis but are only honoured while the secret they were issued under is still
// the configured one, so rotating the secret logs everyone out.
type AuthService struct {
	secret   string
	sessions SessionStore
	log      *logger.Logger
}

func NewAuthService(secret string, sessions SessionStore, log *logger.Logger) *AuthService {
	return &AuthService{secret: secret, sessions: sessions, log: log}
}

func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (s *AuthService) Login(ctx context.Context, presented string) (string, error) {
	secret := s.secret
	if secret == "" {
		s.log.LogSecurity("LOGIN_DISABLED", "Login attempted but no operator secret is configured")
		return "", ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
		s.log.LogSecurity("LOGIN_FAILED", "Invalid operator secret presented")
		return "", ErrUnauthorized
	}

	token, err := utils.GenerateSessionToken()
	if err != nil {
		return "", err
	}
	if err := s.sessions.Put(ctx, token, fingerprint(secret)); err != nil {
		return "", fmt.Errorf("%w: store session: %w", ErrTransient, err)
	}

	s.log.Info("AUTH", "Operator session created")
	return token, nil
}

// Validate returns nil when token belongs to a live session issued under the current secret.
func (s *AuthService) Validate(ctx context.Context, token string) error {
	secret := s.secret
	if token == "" || secret == "" {
		return ErrUnauthorized
	}

	stored, ok, err := s.sessions.Get(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: load session: %w", ErrTransient, err)
	}
	if !ok {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(fingerprint(secret))) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Logout ends the session behind token. Unknown tokens are not an error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("%w: delete session: %w", ErrTransient, err)
	}
	s.log.Info("AUTH", "Operator session ended")
	return nil
}
