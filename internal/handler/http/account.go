package http

import (
	"log/slog"
	"net/http"

	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
	"github.com/malyga99/job-flow-auth/pkg/httputil"
	"github.com/malyga99/job-flow-auth/pkg/middleware"
)

// AccountHandler handles HTTP requests for account endpoints.
type AccountHandler struct {
	accounts AccountGetter
	logger   *slog.Logger
}

// NewAccountHandler creates a new account HTTP handler.
func NewAccountHandler(accounts AccountGetter, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// GetMe handles GET /api/v1/users/me
func (h *AccountHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())
	if accountID == "" {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), h.logger)
		return
	}

	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, account)
}
