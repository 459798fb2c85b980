package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makors/vender/internal/logger"
)

type memorySessions struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func newMemorySessions() *memorySessions {
	return &memorySessions{tokens: make(map[string]string)}
}

func (m *memorySessions) Put(ctx context.Context, token, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tokens[token] = fingerprint
	return nil
}

func (m *memorySessions) Get(ctx context.Context, token string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	fp, ok := m.tokens[token]
	return fp, ok, nil
}

func (m *memorySessions) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.tokens, token)
	return nil
}

func TestLoginAndValidate(t *testing.T) {
	sessions := newMemorySessions()
	auth := NewAuthService("door-code", sessions, logger.Discard())
	ctx := context.Background()

	token, err := auth.Login(ctx, "door-code")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotContains(t, sessions.tokens[token], "door-code", "the raw secret is never stored")

	assert.NoError(t, auth.Validate(ctx, token))
	assert.ErrorIs(t, auth.Validate(ctx, "forged"), ErrUnauthorized)
	assert.ErrorIs(t, auth.Validate(ctx, ""), ErrUnauthorized)
}

func TestLoginWrongSecret(t *testing.T) {
	sessions := newMemorySessions()
	auth := NewAuthService("door-code", sessions, logger.Discard())

	_, err := auth.Login(context.Background(), "guess")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, sessions.tokens)
}

func TestLoginDisabledWithoutSecret(t *testing.T) {
	auth := NewAuthService("", newMemorySessions(), logger.Discard())

	_, err := auth.Login(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSecretRotationInvalidatesSessions(t *testing.T) {
	sessions := newMemorySessions()
	ctx := context.Background()

	before := NewAuthService("old-code", sessions, logger.Discard())
	token, err := before.Login(ctx, "old-code")
	require.NoError(t, err)
	require.NoError(t, before.Validate(ctx, token))

	after := NewAuthService("new-code", sessions, logger.Discard())
	assert.ErrorIs(t, after.Validate(ctx, token), ErrUnauthorized)

	fresh, err := after.Login(ctx, "new-code")
	require.NoError(t, err)
	assert.NoError(t, after.Validate(ctx, fresh))
}

func TestValidateSessionStoreDown(t *testing.T) {
	sessions := newMemorySessions()
	sessions.err = errors.New("redis down")
	auth := NewAuthService("door-code", sessions, logger.Discard())

	assert.ErrorIs(t, auth.Validate(context.Background(), "token"), ErrTransient)

	_, err := auth.Login(context.Background(), "door-code")
	assert.ErrorIs(t, err, ErrTransient)
}

func TestLogout(t *testing.T) {
	sessions := newMemorySessions()
	auth := NewAuthService("door-code", sessions, logger.Discard())
	ctx := context.Background()

	token, err := auth.Login(ctx, "door-code")
	require.NoError(t, err)
	require.NoError(t, auth.Logout(ctx, token))
	assert.ErrorIs(t, auth.Validate(ctx, token), ErrUnauthorized)

	assert.NoError(t, auth.Logout(ctx, ""))
	assert.NoError(t, auth.Logout(ctx, "never-issued"))
}
