package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/malyga99/job-flow-auth/internal/auth"
	"github.com/malyga99/job-flow-auth/pkg/health"
	"github.com/malyga99/job-flow-auth/pkg/middleware"
)

// NewRouter creates a chi router with all auth service routes registered.
func NewRouter(
	flow LoginFlow,
	limiter RateLimiter,
	tokenManager *auth.TokenManager,
	accounts AccountGetter,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("auth"))
	r.Use(middleware.Tracing("auth"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Auth endpoints (public)
	authHandler := NewAuthHandler(flow, limiter, tokenManager, accounts, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Post("/oauth/login", authHandler.OAuthLogin)
		r.Post("/refresh", authHandler.Refresh)
	})

	// Token validator that bridges to our internal token manager. Only
	// access tokens authenticate requests; refresh tokens are confined to
	// the refresh endpoint.
	tokenValidator := func(token string) (*middleware.Claims, error) {
		claims, err := tokenManager.Validate(token)
		if err != nil {
			return nil, err
		}
		if claims.TokenType != auth.TokenTypeAccess {
			return nil, fmt.Errorf("token is not an access token")
		}
		role, _ := claims.Extra["role"].(string)
		return &middleware.Claims{
			AccountID: claims.AccountID,
			Role:      role,
		}, nil
	}

	// Account endpoints (auth required)
	accountHandler := NewAccountHandler(accounts, logger)
	r.Route("/api/v1/users", func(r chi.Router) {
		r.Use(middleware.Auth(tokenValidator))

		r.Get("/me", accountHandler.GetMe)
	})

	return r
}
