package services

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Scope is the permission carried by a control API token.
type Scope string

const (
	// ScopeRead allows inspecting senders, parameters and adaptation.
	ScopeRead Scope = "read"
	// ScopeControl additionally allows mutating parameters and tracks.
	ScopeControl Scope = "control"
)

type contextKey string

const operatorContextKey contextKey = "operator"

type AuthService interface {
	GenerateToken(operator string, scope Scope) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	CheckScope(claims *Claims, required Scope) error
}

type Claims struct {
	Operator string `json:"operator"`
	Scope    Scope  `json:"scope"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
	}
}

func (s *authService) GenerateToken(operator string, scope Scope) (string, error) {
	now := time.Now()
	claims := &Claims{
		Operator: operator,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// CheckScope allows control tokens everywhere and read tokens only where
// read is required.
func (s *authService) CheckScope(claims *Claims, required Scope) error {
	if claims == nil {
		return ErrUnauthorized
	}
	switch claims.Scope {
	case ScopeControl:
		return nil
	case ScopeRead:
		if required == ScopeRead {
			return nil
		}
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

// WithOperator stores the authenticated operator in ctx.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorContextKey, operator)
}

func OperatorFromContext(ctx context.Context) (string, error) {
	operator, ok := ctx.Value(operatorContextKey).(string)
	if !ok || operator == "" {
		return "", ErrUnauthorized
	}
	return operator, nil
}
