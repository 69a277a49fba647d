package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/bankfeed/internal/cryptox"
	"github.com/ericfisherdev/bankfeed/internal/domain/model"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port
// interface. Token values are encrypted with the injected cipher before write;
// reads return ciphertext, and plaintext only leaves through DecryptTokens.
type CredentialRepo struct {
	db     *DB
	cipher *cryptox.TokenCipher
}

// NewCredentialRepo creates a new CredentialRepo backed by the given database
// and token cipher.
func NewCredentialRepo(db *DB, cipher *cryptox.TokenCipher) *CredentialRepo {
	return &CredentialRepo{db: db, cipher: cipher}
}

// Upsert stores the credential for (user, provider, provider_uid), updating
// the tokens and expiry in place when the row already exists. The insert and
// the conflict update run as one statement, so concurrent upserts of the same
// key cannot race into duplicate rows.
func (r *CredentialRepo) Upsert(ctx context.Context, cred driven.UpsertCredential) (model.Credential, error) {
	encAccess, err := r.cipher.Encrypt(cred.AccessToken)
	if err != nil {
		return model.Credential{}, fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := r.cipher.EncryptOptional(cred.RefreshToken)
	if err != nil {
		return model.Credential{}, fmt.Errorf("encrypt refresh token: %w", err)
	}

	const query = `
		INSERT INTO api_credentials (user_id, provider, provider_uid, access_token, refresh_token, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider, provider_uid) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`

	_, err = r.db.Writer.ExecContext(ctx, query,
		cred.UserID.String(), cred.Provider, cred.ProviderUID,
		encAccess, encRefresh, cred.ExpiresAt.UTC(),
	)
	if err != nil {
		return model.Credential{}, fmt.Errorf("upsert credential %s/%s: %w", cred.Provider, cred.ProviderUID, err)
	}

	stored, err := r.Get(ctx, cred.UserID, cred.Provider, cred.ProviderUID)
	if err != nil {
		return model.Credential{}, err
	}
	if stored == nil {
		return model.Credential{}, fmt.Errorf("read back credential %s/%s: row missing after upsert", cred.Provider, cred.ProviderUID)
	}
	return *stored, nil
}

// Get retrieves the credential for (user, provider, provider_uid).
// Returns (nil, nil) if no such credential exists.
func (r *CredentialRepo) Get(ctx context.Context, userID uuid.UUID, provider, providerUID string) (*model.Credential, error) {
	const query = `
		SELECT id, user_id, provider, provider_uid, access_token, refresh_token, expires_at, created_at, updated_at
		FROM api_credentials
		WHERE user_id = ? AND provider = ? AND provider_uid = ?
	`

	row := r.db.Reader.QueryRowContext(ctx, query, userID.String(), provider, providerUID)
	cred, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %s/%s: %w", provider, providerUID, err)
	}
	return &cred, nil
}

// ListByUser returns the user's credentials in insertion order. An empty
// provider applies no provider filter.
func (r *CredentialRepo) ListByUser(ctx context.Context, userID uuid.UUID, provider string) ([]model.Credential, error) {
	query := `
		SELECT id, user_id, provider, provider_uid, access_token, refresh_token, expires_at, created_at, updated_at
		FROM api_credentials
		WHERE user_id = ?
	`
	args := []any{userID.String()}
	if provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}
	query += " ORDER BY id"

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Delete removes the credential only when it belongs to userID. The ownership
// check lives in the WHERE clause, so a foreign id cannot be deleted by
// guessing it.
func (r *CredentialRepo) Delete(ctx context.Context, id int64, userID uuid.UUID) (bool, error) {
	const query = `DELETE FROM api_credentials WHERE id = ? AND user_id = ?`
	res, err := r.db.Writer.ExecContext(ctx, query, id, userID.String())
	if err != nil {
		return false, fmt.Errorf("delete credential %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credential %d: rows affected: %w", id, err)
	}
	return affected > 0, nil
}

// DecryptTokens returns the plaintext access token and, when present, the
// plaintext refresh token of a stored credential.
func (r *CredentialRepo) DecryptTokens(cred model.Credential) (string, *string, error) {
	access, err := r.cipher.Decrypt(cred.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("decrypt access token for credential %d: %w", cred.ID, err)
	}
	refresh, err := r.cipher.DecryptOptional(cred.RefreshToken)
	if err != nil {
		return "", nil, fmt.Errorf("decrypt refresh token for credential %d: %w", cred.ID, err)
	}
	return access, refresh, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (model.Credential, error) {
	var (
		cred      model.Credential
		rawUserID string
		expiresAt string
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&cred.ID, &rawUserID, &cred.Provider, &cred.ProviderUID,
		&cred.AccessToken, &cred.RefreshToken, &expiresAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return model.Credential{}, err
	}

	cred.UserID, err = uuid.Parse(rawUserID)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse user_id: %w", err)
	}
	cred.ExpiresAt, err = parseTime(expiresAt)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse expires_at: %w", err)
	}
	cred.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse created_at: %w", err)
	}
	cred.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return model.Credential{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return cred, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}
