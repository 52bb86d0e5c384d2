package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_TokenRoundTrip(t *testing.T) {
	auth := NewAuthService("secret", time.Minute)

	token, err := auth.GenerateToken("alice", ScopeControl)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Operator)
	assert.Equal(t, ScopeControl, claims.Scope)
}

func TestAuthService_RejectsBadTokens(t *testing.T) {
	auth := NewAuthService("secret", time.Minute)
	other := NewAuthService("other-secret", time.Minute)
	expired := NewAuthService("secret", -time.Minute)

	foreign, err := other.GenerateToken("alice", ScopeRead)
	require.NoError(t, err)
	_, err = auth.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	old, err := expired.GenerateToken("alice", ScopeRead)
	require.NoError(t, err)
	_, err = auth.ValidateToken(old)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = auth.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_CheckScope(t *testing.T) {
	auth := NewAuthService("secret", time.Minute)

	read := &Claims{Scope: ScopeRead}
	control := &Claims{Scope: ScopeControl}

	assert.NoError(t, auth.CheckScope(read, ScopeRead))
	assert.ErrorIs(t, auth.CheckScope(read, ScopeControl), ErrForbidden)
	assert.NoError(t, auth.CheckScope(control, ScopeControl))
	assert.NoError(t, auth.CheckScope(control, ScopeRead))
	assert.ErrorIs(t, auth.CheckScope(&Claims{Scope: "admin"}, ScopeRead), ErrForbidden)
	assert.ErrorIs(t, auth.CheckScope(nil, ScopeRead), ErrUnauthorized)
}

func TestOperatorContext(t *testing.T) {
	_, err := OperatorFromContext(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)

	operator, err := OperatorFromContext(WithOperator(context.Background(), "alice"))
	require.NoError(t, err)
	assert.Equal(t, "alice", operator)
}
