package federation

import (
	"context"
	"log/slog"

	"github.com/malyga99/job-flow-auth/internal/domain"
)

// Flow stages, in order. The stage sequence is per-request, in-memory state;
// nothing is persisted until account resolution, so an abort at any stage
// leaves no partial account and no partial token pair behind.
const (
	stageStart            = "START"
	stageStateValidated   = "STATE_VALIDATED"
	stageCodeExchanged    = "CODE_EXCHANGED"
	stageTokenVerified    = "TOKEN_VERIFIED"
	stageProfileExtracted = "PROFILE_EXTRACTED"
	stageAccountResolved  = "ACCOUNT_RESOLVED"
	stageTokensIssued     = "TOKENS_ISSUED"
)

// AccountProvisioner resolves or creates the local account for a profile.
// The bool reports whether the account was created by this call.
type AccountProvisioner interface {
	GetOrCreate(ctx context.Context, profile *domain.NormalizedProfile) (*domain.Account, bool, error)
}

// TokenIssuer signs the session token pair for a resolved account.
type TokenIssuer interface {
	IssuePair(accountID string, extra map[string]any) (*domain.TokenPair, error)
}

// LoginPublisher emits a login event after a successful flow. Publish
// failures are logged, never surfaced: the login already succeeded.
type LoginPublisher interface {
	AccountLoggedIn(ctx context.Context, account *domain.Account, created bool)
}

// Orchestrator composes the per-provider stages into the end-to-end login
// flow. Every stage failure aborts the whole flow and propagates one typed
// error to the boundary.
type Orchestrator struct {
	registry    *Registry
	provisioner AccountProvisioner
	tokens      TokenIssuer
	events      LoginPublisher
	logger      *slog.Logger
}

// NewOrchestrator creates the login orchestrator. events may be nil.
func NewOrchestrator(
	registry *Registry,
	provisioner AccountProvisioner,
	tokens TokenIssuer,
	events LoginPublisher,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		registry:    registry,
		provisioner: provisioner,
		tokens:      tokens,
		events:      events,
		logger:      logger,
	}
}

// Login runs the full flow for one authorization request.
func (o *Orchestrator) Login(ctx context.Context, req *domain.AuthorizationRequest) (*domain.TokenPair, error) {
	stage := stageStart

	strategy, err := o.registry.Lookup(req.Provider)
	if err != nil {
		return nil, o.abort(ctx, req.Provider, stage, err)
	}

	if err := strategy.State.ValidateState(req.State); err != nil {
		return nil, o.abort(ctx, req.Provider, stage, err)
	}
	stage = stageStateValidated

	payload, err := strategy.Exchanger.Exchange(ctx, req.AuthCode)
	if err != nil {
		return nil, o.abort(ctx, req.Provider, stage, err)
	}
	stage = stageCodeExchanged

	if strategy.Verifier != nil {
		claims, err := strategy.Verifier.Verify(ctx, payload.IDToken)
		if err != nil {
			return nil, o.abort(ctx, req.Provider, stage, err)
		}
		payload.Claims = claims
		stage = stageTokenVerified
	}

	profile, err := strategy.Extractor.Extract(payload)
	if err != nil {
		return nil, o.abort(ctx, req.Provider, stage, err)
	}
	stage = stageProfileExtracted

	account, created, err := o.provisioner.GetOrCreate(ctx, profile)
	if err != nil {
		return nil, o.abort(ctx, req.Provider, stage, err)
	}
	stage = stageAccountResolved

	pair, err := o.tokens.IssuePair(account.ID, map[string]any{"role": account.Role})
	if err != nil {
		return nil, o.abort(ctx, req.Provider, stage, err)
	}
	stage = stageTokensIssued

	o.logger.InfoContext(ctx, "federated login completed",
		slog.String("provider", req.Provider.String()),
		slog.String("account_id", account.ID),
		slog.String("stage", stage),
	)

	if o.events != nil {
		o.events.AccountLoggedIn(ctx, account, created)
	}

	return pair, nil
}

// abort logs the failed stage and passes the typed error through unchanged.
func (o *Orchestrator) abort(ctx context.Context, provider domain.Provider, stage string, err error) error {
	o.logger.WarnContext(ctx, "federated login aborted",
		slog.String("provider", provider.String()),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	return err
}
