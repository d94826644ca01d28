package domain

import "strings"

// Provider identifies a federated identity provider. The canonical form is
// uppercase, matching the persisted representation.
type Provider string

const (
	ProviderGoogle Provider = "GOOGLE"
	ProviderGithub Provider = "GITHUB"
)

// ParseProvider normalizes a wire-level provider name. The second return
// value is false for unknown providers.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(strings.ToUpper(strings.TrimSpace(s))) {
	case ProviderGoogle:
		return ProviderGoogle, true
	case ProviderGithub:
		return ProviderGithub, true
	default:
		return Provider(s), false
	}
}

// String returns the canonical uppercase provider name.
func (p Provider) String() string {
	return string(p)
}
