package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"sendctl/internal/core/services"
	"sendctl/pkg/errors"
	"sendctl/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler mints operator tokens for the control API.
type AuthHandler struct {
	authService services.AuthService
	issuerKey   string
	tokenTTL    time.Duration
	logger      *zap.SugaredLogger
}

func NewAuthHandler(authService services.AuthService, issuerKey string, tokenTTL time.Duration, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		issuerKey:   issuerKey,
		tokenTTL:    tokenTTL,
		logger:      logger,
	}
}

// RegisterRoutes mounts the token endpoint. It stays outside the
// authenticated group.
func (h *AuthHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/auth/token", h.IssueToken)
}

type TokenRequest struct {
	Operator  string         `json:"operator" binding:"required,max=50"`
	Scope     services.Scope `json:"scope"`
	IssuerKey string         `json:"issuer_key" binding:"required,max=512"`
}

func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("invalid request format"))
		return
	}

	req.Operator = strings.TrimSpace(req.Operator)
	if err := validation.ValidateOperator(req.Operator); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}
	if req.Scope == "" {
		req.Scope = services.ScopeRead
	}
	if req.Scope != services.ScopeRead && req.Scope != services.ScopeControl {
		_ = c.Error(errors.NewValidationError("scope must be read or control"))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.IssuerKey), []byte(h.issuerKey)) != 1 {
		h.logger.Warnw("Rejected token request", "operator", req.Operator, "client_ip", c.ClientIP())
		_ = c.Error(errors.NewUnauthorizedError("invalid issuer key"))
		return
	}

	token, err := h.authService.GenerateToken(req.Operator, req.Scope)
	if err != nil {
		_ = c.Error(errors.WrapError(err, errors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	h.logger.Infow("Issued operator token", "operator", req.Operator, "scope", req.Scope)
	c.JSON(http.StatusCreated, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"scope":        req.Scope,
		"expires_in":   int(h.tokenTTL / time.Second),
	})
}
