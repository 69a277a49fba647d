package model

import (
	"time"

	"github.com/google/uuid"
)

// ProviderEnableBanking is the provider tag under which Enable Banking
// credentials are stored.
const ProviderEnableBanking = "enablebanking"

// Credential holds the encrypted access tokens for one authorized bank
// connection. The (UserID, Provider, ProviderUID) tuple is the business key:
// re-authorizing the same bank updates the existing row in place.
//
// AccessToken and RefreshToken hold ciphertext at rest; plaintext is only
// available through the CredentialStore's DecryptTokens.
type Credential struct {
	ID           int64
	UserID       uuid.UUID
	Provider     string
	ProviderUID  string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the credential's validity window has passed at the
// given instant. Evaluated at read time; never stored.
func (c Credential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
