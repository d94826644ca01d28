package domain

import "time"

// Account represents a provisioned user account. Federated accounts carry a
// (provider, provider subject id) pair, unique when the subject id is set;
// login and password hash are nullable because federated-only accounts have
// neither. Provider identity is never rewritten once set.
type Account struct {
	ID                string    `json:"id"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Login             *string   `json:"login,omitempty"`
	PasswordHash      *string   `json:"-"`
	Avatar            []byte    `json:"-"`
	Role              string    `json:"role"`
	Provider          Provider  `json:"provider,omitempty"`
	ProviderSubjectID *string   `json:"provider_subject_id,omitempty"`
	TelegramChatID    *int64    `json:"telegram_chat_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RoleUser is the role assigned to every federated account on creation.
const RoleUser = "USER"
