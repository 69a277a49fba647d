package driven

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
)

// UpsertCredential carries the plaintext inputs for storing a credential.
// Encryption happens inside the adapter; callers never see ciphertext.
type UpsertCredential struct {
	UserID       uuid.UUID
	Provider     string
	ProviderUID  string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    time.Time
}

// CredentialStore defines the driven port for encrypted credential
// persistence. Lookups and comparisons only ever touch non-secret columns;
// token plaintext crosses this boundary solely via Upsert (in) and
// DecryptTokens (out).
type CredentialStore interface {
	// Upsert stores the credential, updating in place when a row with the
	// same (user, provider, provider_uid) key exists. The row identity for a
	// given key never changes across repeated calls.
	Upsert(ctx context.Context, cred UpsertCredential) (model.Credential, error)

	// Get returns the credential for the given key, or nil when absent.
	Get(ctx context.Context, userID uuid.UUID, provider, providerUID string) (*model.Credential, error)

	// ListByUser returns the user's credentials in insertion order.
	// An empty provider means no provider filter.
	ListByUser(ctx context.Context, userID uuid.UUID, provider string) ([]model.Credential, error)

	// Delete removes the credential only when it belongs to userID. It
	// returns false, without a distinct error, when the row is absent or
	// owned by someone else.
	Delete(ctx context.Context, id int64, userID uuid.UUID) (bool, error)

	// DecryptTokens returns the plaintext access token and, when set, the
	// plaintext refresh token of a stored credential.
	DecryptTokens(cred model.Credential) (accessToken string, refreshToken *string, err error)
}
