package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

// ErrAuthorization marks a failed bank authorization: the exchanged code
// yielded no session, or the session never reached the authorized state.
// Boundary layers map it to a client error, not a server one.
var ErrAuthorization = fmt.Errorf("bank authorization failed")

// ConnectionService completes bank authorizations and reports the live state
// of stored connections.
type ConnectionService struct {
	client driven.BankingClient
	creds  driven.CredentialStore
	logger *slog.Logger
}

// NewConnectionService creates a new ConnectionService.
func NewConnectionService(client driven.BankingClient, creds driven.CredentialStore) *ConnectionService {
	return &ConnectionService{
		client: client,
		creds:  creds,
		logger: slog.Default(),
	}
}

// CompleteAuthorization exchanges the callback code for a session, verifies
// the session is authorized, and stores the session tokens as a credential
// keyed by the bank. Re-authorizing the same bank updates the stored
// credential in place.
func (s *ConnectionService) CompleteAuthorization(ctx context.Context, userID uuid.UUID, code string) (model.ConnectionSummary, error) {
	newSession, err := s.client.CreateSession(ctx, code)
	if err != nil {
		return model.ConnectionSummary{}, fmt.Errorf("exchange authorization code: %w", err)
	}
	if newSession.SessionID == "" {
		return model.ConnectionSummary{}, fmt.Errorf("%w: no session returned for code", ErrAuthorization)
	}

	session, err := s.client.GetSession(ctx, newSession.SessionID)
	if err != nil {
		return model.ConnectionSummary{}, fmt.Errorf("fetch session %s: %w", newSession.SessionID, err)
	}
	if session.Status != model.SessionStatusAuthorized {
		return model.ConnectionSummary{}, fmt.Errorf("%w: session status %q", ErrAuthorization, session.Status)
	}

	providerUID := BankProviderUID(session.Bank)

	_, err = s.creds.Upsert(ctx, driven.UpsertCredential{
		UserID:       userID,
		Provider:     model.ProviderEnableBanking,
		ProviderUID:  providerUID,
		AccessToken:  newSession.AccessToken,
		RefreshToken: newSession.RefreshToken,
		ExpiresAt:    session.Access.ValidUntil,
	})
	if err != nil {
		return model.ConnectionSummary{}, fmt.Errorf("store credential %s: %w", providerUID, err)
	}

	s.logger.Info("bank connection authorized",
		"user_id", userID,
		"provider_uid", providerUID,
		"accounts", len(session.Accounts),
	)

	return model.ConnectionSummary{
		BankName:     session.Bank.Name,
		BankCountry:  session.Bank.Country,
		AccountCount: len(session.Accounts),
		ExpiresAt:    session.Access.ValidUntil,
	}, nil
}

// ListConnections returns one result per stored credential. Each entry
// carries either the re-fetched live connection state or the reason the
// refresh failed; one bank being down never hides the others.
func (s *ConnectionService) ListConnections(ctx context.Context, userID uuid.UUID) ([]model.ConnectionResult, error) {
	creds, err := s.creds.ListByUser(ctx, userID, model.ProviderEnableBanking)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	results := make([]model.ConnectionResult, 0, len(creds))
	for _, cred := range creds {
		result := model.ConnectionResult{
			CredentialID: cred.ID,
			ProviderUID:  cred.ProviderUID,
		}

		session, err := s.client.GetSession(ctx, cred.ProviderUID)
		if err != nil {
			s.logger.Warn("failed to refresh connection state",
				"user_id", userID,
				"provider_uid", cred.ProviderUID,
				"error", err,
			)
			result.FailureReason = err.Error()
			results = append(results, result)
			continue
		}

		result.Connection = &model.Connection{
			Bank:         session.Bank,
			Status:       session.Status,
			AccountCount: len(session.Accounts),
			ExpiresAt:    session.Access.ValidUntil,
			LastUpdate:   session.Authorized,
		}
		results = append(results, result)
	}

	return results, nil
}

// BankProviderUID derives the stable per-bank credential key, e.g.
// Nordea/FI becomes "nordea_fi".
func BankProviderUID(bank model.Bank) string {
	return strings.ToLower(bank.Name + "_" + bank.Country)
}
