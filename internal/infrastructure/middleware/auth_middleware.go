package middleware

import (
	stderrors "errors"
	"net/http"
	"strings"

	"sendctl/internal/core/services"
	"sendctl/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	operatorKey = "operator"
	claimsKey   = "claims"
)

// AuthMiddleware requires a bearer token carrying at least the given scope.
func AuthMiddleware(authService services.AuthService, required services.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWith(c, errors.NewUnauthorizedError("bearer token required"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWith(c, errors.NewUnauthorizedError(err.Error()))
			return
		}

		if err := authService.CheckScope(claims, required); err != nil {
			status := http.StatusForbidden
			if stderrors.Is(err, services.ErrUnauthorized) {
				status = http.StatusUnauthorized
			}
			abortWith(c, errors.NewAppError(errors.ErrCodeUnauthorized, "insufficient scope", status).
				WithContext("required_scope", string(required)))
			return
		}

		c.Set(operatorKey, claims.Operator)
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(services.WithOperator(c.Request.Context(), claims.Operator))
		c.Next()
	}
}

// ScopeMiddleware picks the required scope by method: safe methods need
// read, everything else needs control.
func ScopeMiddleware(authService services.AuthService) gin.HandlerFunc {
	read := AuthMiddleware(authService, services.ScopeRead)
	control := AuthMiddleware(authService, services.ScopeControl)

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			read(c)
		default:
			control(c)
		}
	}
}

// Operator returns the authenticated operator, or "" without auth.
func Operator(c *gin.Context) string {
	return c.GetString(operatorKey)
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func abortWith(c *gin.Context, err *errors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, gin.H{
		"error":   string(err.Code),
		"message": err.Message,
	})
}
