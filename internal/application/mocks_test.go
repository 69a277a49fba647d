package application_test

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockBankingClient struct {
	getApplication      func(ctx context.Context) (model.Application, error)
	listBanks           func(ctx context.Context) ([]model.Bank, error)
	startAuthorization  func(ctx context.Context, bankName, bankCountry, redirectURL string) (model.AuthRedirect, error)
	createSession       func(ctx context.Context, authCode string) (model.NewSession, error)
	getSession          func(ctx context.Context, sessionRef string) (model.Session, error)
	getAccountBalances  func(ctx context.Context, accountUID string) ([]model.Balance, error)
	getTransactions     func(ctx context.Context, accountUID, dateFrom, continuationKey string) (model.TransactionPage, error)
	applicationCalls    int
	transactionCalls    []transactionCall
	sessionRefsFetched  []string
}

type transactionCall struct {
	AccountUID      string
	DateFrom        string
	ContinuationKey string
}

func (m *mockBankingClient) GetApplication(ctx context.Context) (model.Application, error) {
	m.applicationCalls++
	if m.getApplication == nil {
		return model.Application{Name: "test-app", RedirectURLs: []string{"https://app.example/callback"}}, nil
	}
	return m.getApplication(ctx)
}

func (m *mockBankingClient) ListBanks(ctx context.Context) ([]model.Bank, error) {
	if m.listBanks == nil {
		return nil, nil
	}
	return m.listBanks(ctx)
}

func (m *mockBankingClient) StartAuthorization(ctx context.Context, bankName, bankCountry, redirectURL string) (model.AuthRedirect, error) {
	if m.startAuthorization == nil {
		return model.AuthRedirect{}, nil
	}
	return m.startAuthorization(ctx, bankName, bankCountry, redirectURL)
}

func (m *mockBankingClient) CreateSession(ctx context.Context, authCode string) (model.NewSession, error) {
	if m.createSession == nil {
		return model.NewSession{}, nil
	}
	return m.createSession(ctx, authCode)
}

func (m *mockBankingClient) GetSession(ctx context.Context, sessionRef string) (model.Session, error) {
	m.sessionRefsFetched = append(m.sessionRefsFetched, sessionRef)
	if m.getSession == nil {
		return model.Session{}, nil
	}
	return m.getSession(ctx, sessionRef)
}

func (m *mockBankingClient) GetAccountBalances(ctx context.Context, accountUID string) ([]model.Balance, error) {
	if m.getAccountBalances == nil {
		return nil, nil
	}
	return m.getAccountBalances(ctx, accountUID)
}

func (m *mockBankingClient) GetAccountTransactions(ctx context.Context, accountUID, dateFrom, continuationKey string) (model.TransactionPage, error) {
	m.transactionCalls = append(m.transactionCalls, transactionCall{
		AccountUID:      accountUID,
		DateFrom:        dateFrom,
		ContinuationKey: continuationKey,
	})
	if m.getTransactions == nil {
		return model.TransactionPage{}, nil
	}
	return m.getTransactions(ctx, accountUID, dateFrom, continuationKey)
}

// mockCredentialStore is an in-memory CredentialStore. Tokens are stored as
// given; DecryptTokens hands them back unchanged.
type mockCredentialStore struct {
	nextID  int64
	creds   []model.Credential
	upserts []driven.UpsertCredential

	upsertErr error
	listErr   error
}

func (m *mockCredentialStore) Upsert(_ context.Context, in driven.UpsertCredential) (model.Credential, error) {
	m.upserts = append(m.upserts, in)
	if m.upsertErr != nil {
		return model.Credential{}, m.upsertErr
	}

	for i, cred := range m.creds {
		if cred.UserID == in.UserID && cred.Provider == in.Provider && cred.ProviderUID == in.ProviderUID {
			m.creds[i].AccessToken = in.AccessToken
			m.creds[i].RefreshToken = in.RefreshToken
			m.creds[i].ExpiresAt = in.ExpiresAt
			return m.creds[i], nil
		}
	}

	m.nextID++
	cred := model.Credential{
		ID:           m.nextID,
		UserID:       in.UserID,
		Provider:     in.Provider,
		ProviderUID:  in.ProviderUID,
		AccessToken:  in.AccessToken,
		RefreshToken: in.RefreshToken,
		ExpiresAt:    in.ExpiresAt,
	}
	m.creds = append(m.creds, cred)
	return cred, nil
}

func (m *mockCredentialStore) Get(_ context.Context, userID uuid.UUID, provider, providerUID string) (*model.Credential, error) {
	for _, cred := range m.creds {
		if cred.UserID == userID && cred.Provider == provider && cred.ProviderUID == providerUID {
			c := cred
			return &c, nil
		}
	}
	return nil, nil
}

func (m *mockCredentialStore) ListByUser(_ context.Context, userID uuid.UUID, provider string) ([]model.Credential, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.Credential
	for _, cred := range m.creds {
		if cred.UserID == userID && (provider == "" || cred.Provider == provider) {
			out = append(out, cred)
		}
	}
	return out, nil
}

func (m *mockCredentialStore) Delete(_ context.Context, id int64, userID uuid.UUID) (bool, error) {
	for i, cred := range m.creds {
		if cred.ID == id && cred.UserID == userID {
			m.creds = append(m.creds[:i], m.creds[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockCredentialStore) DecryptTokens(cred model.Credential) (string, *string, error) {
	return cred.AccessToken, cred.RefreshToken, nil
}

type mockTransactionStore struct {
	batches   [][]model.TaggedTransaction
	appendErr error
}

func (m *mockTransactionStore) AppendBatch(_ context.Context, txs []model.TaggedTransaction) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.batches = append(m.batches, txs)
	return nil
}

func (m *mockTransactionStore) CountByUser(_ context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	for _, batch := range m.batches {
		for _, tx := range batch {
			if tx.UserID == userID {
				count++
			}
		}
	}
	return count, nil
}

func (m *mockTransactionStore) landed() []model.TaggedTransaction {
	var out []model.TaggedTransaction
	for _, batch := range m.batches {
		out = append(out, batch...)
	}
	return out
}

// upsertFor builds a minimal credential upsert for the given bank key.
func upsertFor(userID uuid.UUID, providerUID string) driven.UpsertCredential {
	return driven.UpsertCredential{
		UserID:      userID,
		Provider:    model.ProviderEnableBanking,
		ProviderUID: providerUID,
		AccessToken: "access-" + providerUID,
	}
}

// authorizedSession builds a session in the authorized state for the given
// bank with one account per provided uid.
func authorizedSession(bankName, bankCountry string, accountUIDs ...string) model.Session {
	session := model.Session{
		Status: model.SessionStatusAuthorized,
		Bank:   model.Bank{Name: bankName, Country: bankCountry},
	}
	for i, uid := range accountUIDs {
		session.Accounts = append(session.Accounts, model.Account{
			UID:  uid,
			Name: fmt.Sprintf("Account %d", i+1),
			IBAN: fmt.Sprintf("FI00000000000000%02d", i+1),
		})
	}
	return session
}
