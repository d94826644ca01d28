package repository

import (
	"context"

	"github.com/malyga99/job-flow-auth/internal/domain"
)

// AccountRepository defines the interface for account persistence operations.
type AccountRepository interface {
	// Create inserts a new account into the store. Returns ErrAlreadyExists
	// when an account with the same (provider, provider subject id) pair
	// was inserted concurrently.
	Create(ctx context.Context, account *domain.Account) error

	// GetByID retrieves an account by its unique identifier.
	GetByID(ctx context.Context, id string) (*domain.Account, error)

	// FindByProviderSubject retrieves the account bound to the given
	// federated identity, or ErrNotFound when none exists.
	FindByProviderSubject(ctx context.Context, provider domain.Provider, subjectID string) (*domain.Account, error)
}
