package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/malyga99/job-flow-auth/internal/domain"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// DB is the subset of pgxpool.Pool used by the repositories. It is satisfied
// by *pgxpool.Pool and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements repository.AccountRepository using PostgreSQL.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new PostgreSQL-backed account repository.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account into the database. The database generates the
// id and timestamps; they are read back into the account.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (first_name, last_name, login, password_hash, avatar, role, provider, provider_subject_id, telegram_chat_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		a.FirstName,
		a.LastName,
		a.Login,
		a.PasswordHash,
		a.Avatar,
		a.Role,
		a.Provider.String(),
		a.ProviderSubjectID,
		a.TelegramChatID,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			subject := ""
			if a.ProviderSubjectID != nil {
				subject = *a.ProviderSubjectID
			}
			return apperrors.AlreadyExists("account", "provider_subject_id", subject)
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	query := `
		SELECT id, first_name, last_name, login, password_hash, avatar, role, provider, provider_subject_id, telegram_chat_id, created_at, updated_at
		FROM accounts
		WHERE id = $1`

	return r.scanAccount(ctx, query, id)
}

// FindByProviderSubject retrieves the account bound to a federated identity.
func (r *AccountRepository) FindByProviderSubject(ctx context.Context, provider domain.Provider, subjectID string) (*domain.Account, error) {
	query := `
		SELECT id, first_name, last_name, login, password_hash, avatar, role, provider, provider_subject_id, telegram_chat_id, created_at, updated_at
		FROM accounts
		WHERE provider = $1 AND provider_subject_id = $2`

	return r.scanAccount(ctx, query, provider.String(), subjectID)
}

// scanAccount is a helper that executes a query expected to return a single account row.
func (r *AccountRepository) scanAccount(ctx context.Context, query string, args ...any) (*domain.Account, error) {
	var a domain.Account

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&a.ID,
		&a.FirstName,
		&a.LastName,
		&a.Login,
		&a.PasswordHash,
		&a.Avatar,
		&a.Role,
		&a.Provider,
		&a.ProviderSubjectID,
		&a.TelegramChatID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	return &a, nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
