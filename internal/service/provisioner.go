package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/malyga99/job-flow-auth/internal/domain"
	"github.com/malyga99/job-flow-auth/internal/repository"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// maxAvatarBytes bounds the size of a fetched avatar body.
const maxAvatarBytes = 5 << 20

// AvatarFetcher retrieves remote content. Satisfied by httpclient.Client and
// httpclient.CircuitBreakerClient.
type AvatarFetcher interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Provisioner idempotently resolves or creates accounts from normalized
// federated profiles.
type Provisioner struct {
	accounts repository.AccountRepository
	avatars  AvatarFetcher
	logger   *slog.Logger
}

// NewProvisioner creates an account provisioner.
func NewProvisioner(accounts repository.AccountRepository, avatars AvatarFetcher, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		accounts: accounts,
		avatars:  avatars,
		logger:   logger,
	}
}

// GetOrCreate looks up the account by (provider, subject id) and creates it
// on first login. An existing account is returned as-is: a changed provider
// profile never silently mutates stored fields. The bool reports whether the
// account was created by this call.
//
// The lookup is an optimization, not the concurrency guarantee; the unique
// constraint at the storage layer is the serialization point. Losing the
// insert race surfaces as a unique conflict, which is resolved by re-fetching
// the winner's row.
func (p *Provisioner) GetOrCreate(ctx context.Context, profile *domain.NormalizedProfile) (*domain.Account, bool, error) {
	existing, err := p.accounts.FindByProviderSubject(ctx, profile.Provider, profile.SubjectID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup account: %w", err)
	}

	account, err := p.newAccount(ctx, profile)
	if err != nil {
		return nil, false, err
	}

	if err := p.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			// Lost the first-login race; the winner's row is the account.
			winner, ferr := p.accounts.FindByProviderSubject(ctx, profile.Provider, profile.SubjectID)
			if ferr != nil {
				return nil, false, fmt.Errorf("re-fetch account after conflict: %w", ferr)
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("create account: %w", err)
	}

	p.logger.InfoContext(ctx, "account provisioned",
		slog.String("account_id", account.ID),
		slog.String("provider", profile.Provider.String()),
	)

	return account, true, nil
}

// newAccount builds the account to persist for a first login.
func (p *Provisioner) newAccount(ctx context.Context, profile *domain.NormalizedProfile) (*domain.Account, error) {
	account := &domain.Account{
		FirstName:         profile.FirstName,
		LastName:          profile.LastName,
		Role:              domain.RoleUser,
		Provider:          profile.Provider,
		ProviderSubjectID: &profile.SubjectID,
	}
	if profile.LoginOrEmail != "" {
		login := profile.LoginOrEmail
		account.Login = &login
	}

	avatar, err := p.fetchAvatar(ctx, profile.AvatarURL)
	if err != nil {
		return nil, err
	}
	account.Avatar = avatar

	return account, nil
}

// fetchAvatar downloads the avatar bytes. A blank URL yields a nil avatar
// with no request made. A fetch failure aborts provisioning: no stage
// substitutes a default for an error.
func (p *Provisioner) fetchAvatar(ctx context.Context, avatarURL string) ([]byte, error) {
	if strings.TrimSpace(avatarURL) == "" {
		return nil, nil
	}

	resp, err := p.avatars.Get(ctx, avatarURL)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("fetch avatar: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Internal(fmt.Errorf("fetch avatar: unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAvatarBytes))
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("read avatar body: %w", err))
	}
	if len(body) == 0 {
		return nil, nil
	}

	return body, nil
}
