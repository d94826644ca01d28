package federation

import (
	"github.com/malyga99/job-flow-auth/internal/domain"
	apperrors "github.com/malyga99/job-flow-auth/pkg/errors"
)

// StaticStateValidator compares the presented state to a fixed,
// provider-configured value. This is deliberately not a per-session nonce:
// the value is static configuration shared with the frontend, so a plain
// equality check suffices and replay across sessions is a documented
// limitation of the scheme, not of this implementation.
type StaticStateValidator struct {
	provider domain.Provider
	expected string
}

// NewStaticStateValidator creates a validator for the given provider.
func NewStaticStateValidator(provider domain.Provider, expected string) *StaticStateValidator {
	return &StaticStateValidator{provider: provider, expected: expected}
}

// ValidateState checks the presented state against the configured value.
func (v *StaticStateValidator) ValidateState(presented string) error {
	if presented != v.expected {
		return apperrors.StateMismatch(v.provider.String())
	}
	return nil
}
