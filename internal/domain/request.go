package domain

// AuthorizationRequest is the inbound federated login request. Transient,
// one per call, never persisted.
type AuthorizationRequest struct {
	Provider Provider
	State    string
	AuthCode string
	ClientIP string
}
