package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/malyga99/job-flow-auth/internal/domain"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
	"github.com/malyga99/job-flow-auth/pkg/httpclient"
)

// --- Mock Account Repository ---

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) FindByProviderSubject(ctx context.Context, provider domain.Provider, subjectID string) (*domain.Account, error) {
	args := m.Called(ctx, provider, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

// --- helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func googleProfile() *domain.NormalizedProfile {
	return &domain.NormalizedProfile{
		FirstName: "Ivan",
		LastName:  "Ivanov",
		Provider:  domain.ProviderGoogle,
		SubjectID: "123",
	}
}

func newProvisioner(repo *mockAccountRepository) *Provisioner {
	return NewProvisioner(repo, httpclient.New(httpclient.DefaultConfig()), testLogger())
}

// ---------------------------------------------------------------------------
// GetOrCreate
// ---------------------------------------------------------------------------

func TestProvisioner_GetOrCreate_ExistingAccount(t *testing.T) {
	repo := new(mockAccountRepository)
	existing := &domain.Account{ID: "acc-001", FirstName: "Stored", Provider: domain.ProviderGoogle}

	repo.On("FindByProviderSubject", mock.Anything, domain.ProviderGoogle, "123").
		Return(existing, nil).Once()

	p := newProvisioner(repo)

	account, created, err := p.GetOrCreate(context.Background(), googleProfile())
	require.NoError(t, err)
	assert.False(t, created)

	// Returned as-is: a changed provider profile never mutates stored fields.
	assert.Equal(t, "Stored", account.FirstName)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProvisioner_GetOrCreate_CreatesWithoutAvatar(t *testing.T) {
	repo := new(mockAccountRepository)

	repo.On("FindByProviderSubject", mock.Anything, domain.ProviderGoogle, "123").
		Return(nil, apperrors.ErrNotFound).Once()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Account")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Account).ID = "acc-new"
		}).
		Return(nil).Once()

	p := newProvisioner(repo)

	account, created, err := p.GetOrCreate(context.Background(), googleProfile())
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, "acc-new", account.ID)
	assert.Equal(t, "Ivan", account.FirstName)
	assert.Equal(t, "Ivanov", account.LastName)
	assert.Nil(t, account.Avatar)
	assert.Nil(t, account.Login)
	assert.Equal(t, domain.RoleUser, account.Role)
	assert.Equal(t, domain.ProviderGoogle, account.Provider)
	require.NotNil(t, account.ProviderSubjectID)
	assert.Equal(t, "123", *account.ProviderSubjectID)
	repo.AssertExpectations(t)
}

func TestProvisioner_GetOrCreate_FetchesAvatarBytes(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte{1, 2, 3})
	}))
	defer srv.Close()

	repo := new(mockAccountRepository)
	repo.On("FindByProviderSubject", mock.Anything, domain.ProviderGithub, "123").
		Return(nil, apperrors.ErrNotFound).Once()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Account")).
		Return(nil).Once()

	p := newProvisioner(repo)

	profile := &domain.NormalizedProfile{
		FirstName:    "Ivan",
		LoginOrEmail: "ivan",
		AvatarURL:    srv.URL,
		Provider:     domain.ProviderGithub,
		SubjectID:    "123",
	}

	account, created, err := p.GetOrCreate(context.Background(), profile)
	require.NoError(t, err)
	assert.True(t, created)

	assert.Equal(t, []byte{1, 2, 3}, account.Avatar)
	require.NotNil(t, account.Login)
	assert.Equal(t, "ivan", *account.Login)
	assert.Equal(t, int64(1), hits.Load())
	repo.AssertExpectations(t)
}

func TestProvisioner_GetOrCreate_BlankAvatarURLSkipsFetch(t *testing.T) {
	repo := new(mockAccountRepository)
	repo.On("FindByProviderSubject", mock.Anything, domain.ProviderGoogle, "123").
		Return(nil, apperrors.ErrNotFound).Once()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Account")).
		Return(nil).Once()

	// nil fetcher would panic if any request were attempted
	p := NewProvisioner(repo, nil, testLogger())

	profile := googleProfile()
	profile.AvatarURL = "   "

	account, _, err := p.GetOrCreate(context.Background(), profile)
	require.NoError(t, err)
	assert.Nil(t, account.Avatar)
	repo.AssertExpectations(t)
}

func TestProvisioner_GetOrCreate_AvatarFetchFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	repo := new(mockAccountRepository)
	repo.On("FindByProviderSubject", mock.Anything, domain.ProviderGithub, "123").
		Return(nil, apperrors.ErrNotFound).Once()

	p := newProvisioner(repo)

	profile := &domain.NormalizedProfile{
		AvatarURL: srv.URL,
		Provider:  domain.ProviderGithub,
		SubjectID: "123",
	}

	account, created, err := p.GetOrCreate(context.Background(), profile)
	assert.Nil(t, account)
	assert.False(t, created)
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	// No partial account creation on a failed stage.
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestProvisioner_GetOrCreate_LostRaceRefetchesWinner(t *testing.T) {
	repo := new(mockAccountRepository)
	winner := &domain.Account{ID: "acc-winner", Provider: domain.ProviderGoogle}

	repo.On("FindByProviderSubject", mock.Anything, domain.ProviderGoogle, "123").
		Return(nil, apperrors.ErrNotFound).Once()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Account")).
		Return(apperrors.AlreadyExists("account", "provider_subject_id", "123")).Once()
	repo.On("FindByProviderSubject", mock.Anything, domain.ProviderGoogle, "123").
		Return(winner, nil).Once()

	p := newProvisioner(repo)

	account, created, err := p.GetOrCreate(context.Background(), googleProfile())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "acc-winner", account.ID)
	repo.AssertExpectations(t)
}

func TestProvisioner_GetOrCreate_LookupError(t *testing.T) {
	repo := new(mockAccountRepository)
	repo.On("FindByProviderSubject", mock.Anything, domain.ProviderGoogle, "123").
		Return(nil, assert.AnError).Once()

	p := newProvisioner(repo)

	account, _, err := p.GetOrCreate(context.Background(), googleProfile())
	assert.Nil(t, account)
	assert.Error(t, err)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
