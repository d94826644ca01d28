package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malyga99/job-flow-auth/internal/domain"
	pkgkafka "github.com/malyga99/job-flow-auth/pkg/kafka"
)

// Kafka topic constants for auth domain events.
const (
	TopicAccountProvisioned = "auth.account.provisioned"
	TopicUserLoggedIn       = "auth.user.logged_in"
)

// Aggregate type constant.
const AggregateTypeAccount = "account"

// Source identifier for events originating from this service.
const SourceAuthService = "auth-service"

// AccountProvisionedData is the payload for an account.provisioned event.
type AccountProvisionedData struct {
	AccountID string `json:"account_id"`
	Provider  string `json:"provider"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// UserLoggedInData is the payload for a user.logged_in event.
type UserLoggedInData struct {
	AccountID string `json:"account_id"`
	Provider  string `json:"provider"`
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishAccountProvisioned publishes an account.provisioned event.
func (p *Producer) PublishAccountProvisioned(ctx context.Context, account *domain.Account) error {
	data := AccountProvisionedData{
		AccountID: account.ID,
		Provider:  account.Provider.String(),
		FirstName: account.FirstName,
		LastName:  account.LastName,
		Role:      account.Role,
	}

	event, err := pkgkafka.NewEvent(TopicAccountProvisioned, account.ID, AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create account.provisioned event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicAccountProvisioned, event); err != nil {
		return fmt.Errorf("publish account.provisioned event: %w", err)
	}

	p.logger.DebugContext(ctx, "published account.provisioned event",
		slog.String("account_id", account.ID),
		slog.String("provider", account.Provider.String()),
	)

	return nil
}

// PublishUserLoggedIn publishes a user.logged_in event.
func (p *Producer) PublishUserLoggedIn(ctx context.Context, account *domain.Account) error {
	data := UserLoggedInData{
		AccountID: account.ID,
		Provider:  account.Provider.String(),
	}

	event, err := pkgkafka.NewEvent(TopicUserLoggedIn, account.ID, AggregateTypeAccount, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.logged_in event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserLoggedIn, event); err != nil {
		return fmt.Errorf("publish user.logged_in event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.logged_in event",
		slog.String("account_id", account.ID),
	)

	return nil
}

// AccountLoggedIn implements the orchestrator's login publisher. Publish
// failures are logged and dropped: the login already succeeded and event
// delivery is best-effort.
func (p *Producer) AccountLoggedIn(ctx context.Context, account *domain.Account, created bool) {
	if created {
		if err := p.PublishAccountProvisioned(ctx, account); err != nil {
			p.logger.ErrorContext(ctx, "failed to publish account.provisioned event",
				slog.String("account_id", account.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := p.PublishUserLoggedIn(ctx, account); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish user.logged_in event",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
	}
}
