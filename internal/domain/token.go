package domain

// TokenPair holds the access and refresh tokens issued for a session.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
