package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/malyga99/job-flow-auth/internal/auth"
	"github.com/malyga99/job-flow-auth/internal/domain"
	"github.com/malyga99/job-flow-auth/internal/ratelimit"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
	"github.com/malyga99/job-flow-auth/pkg/httputil"
	"github.com/malyga99/job-flow-auth/pkg/middleware"
	"github.com/malyga99/job-flow-auth/pkg/validator"
)

// LoginFlow runs the federated login pipeline for one authorization request.
type LoginFlow interface {
	Login(ctx context.Context, req *domain.AuthorizationRequest) (*domain.TokenPair, error)
}

// RateLimiter counts a request against a key before the flow starts.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, key string) error
}

// TokenService issues and validates the service's own session tokens.
type TokenService interface {
	IssuePair(accountID string, extra map[string]any) (*domain.TokenPair, error)
	ValidateRefresh(token string) (*auth.Claims, error)
}

// AccountGetter loads accounts for token refresh and profile reads.
type AccountGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	flow     LoginFlow
	limiter  RateLimiter
	tokens   TokenService
	accounts AccountGetter
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(flow LoginFlow, limiter RateLimiter, tokens TokenService, accounts AccountGetter, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		flow:     flow,
		limiter:  limiter,
		tokens:   tokens,
		accounts: accounts,
		logger:   logger,
	}
}

// --- Request DTOs ---

// OAuthLoginRequest is the JSON request body for federated login.
type OAuthLoginRequest struct {
	Provider string `json:"provider" validate:"required"`
	State    string `json:"state" validate:"required"`
	AuthCode string `json:"authCode" validate:"required"`
}

// RefreshRequest is the JSON request body for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

// --- Handlers ---

// OAuthLogin handles POST /api/v1/auth/oauth/login
func (h *AuthHandler) OAuthLogin(w http.ResponseWriter, r *http.Request) {
	// The rate limit gate runs first: every attempt counts against the
	// caller's window, including malformed ones, and abusive traffic never
	// reaches the decode path or the provider endpoints.
	clientIP := middleware.ClientIP(r)
	if err := h.limiter.CheckAndIncrement(r.Context(), ratelimit.LoginKey(clientIP)); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req OAuthLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	provider, ok := domain.ParseProvider(req.Provider)
	if !ok {
		httputil.WriteError(w, r, apperrors.UnsupportedProvider(req.Provider), h.logger)
		return
	}

	pair, err := h.flow.Login(r.Context(), &domain.AuthorizationRequest{
		Provider: provider,
		State:    req.State,
		AuthCode: req.AuthCode,
		ClientIP: clientIP,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pair)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid request body: "+err.Error()), h.logger)
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	claims, err := h.tokens.ValidateRefresh(req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired refresh token"), h.logger)
		return
	}

	account, err := h.accounts.GetByID(r.Context(), claims.AccountID)
	if err != nil {
		// A token whose subject no longer resolves is unauthenticated,
		// not a lookup miss.
		if errors.Is(err, apperrors.ErrNotFound) {
			httputil.WriteError(w, r, apperrors.Unauthorized("account no longer exists"), h.logger)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	pair, err := h.tokens.IssuePair(account.ID, map[string]any{"role": account.Role})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pair)
}
