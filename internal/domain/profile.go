package domain

// NormalizedProfile is the provider-agnostic view of a federated identity:
// the contract every profile extractor produces regardless of whether the
// source was Google ID token claims or a GitHub profile response.
type NormalizedProfile struct {
	FirstName    string
	LastName     string
	LoginOrEmail string
	AvatarURL    string
	Provider     Provider
	SubjectID    string
}
