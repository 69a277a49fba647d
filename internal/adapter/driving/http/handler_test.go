package httphandler_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/bankfeed/internal/adapter/driven/enablebanking"
	httphandler "github.com/ericfisherdev/bankfeed/internal/adapter/driving/http"
	"github.com/ericfisherdev/bankfeed/internal/application"
	"github.com/ericfisherdev/bankfeed/internal/domain/model"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockBankingClient struct {
	banks         []model.Bank
	banksErr      error
	authRedirect  model.AuthRedirect
	newSession    model.NewSession
	session       model.Session
	sessionErr    error
	balances      []model.Balance
	page          model.TransactionPage
	transactions  error
	createSessErr error
}

func (m *mockBankingClient) GetApplication(_ context.Context) (model.Application, error) {
	return model.Application{Name: "test-app", RedirectURLs: []string{"https://app.example/callback"}}, nil
}

func (m *mockBankingClient) ListBanks(_ context.Context) ([]model.Bank, error) {
	return m.banks, m.banksErr
}

func (m *mockBankingClient) StartAuthorization(_ context.Context, _, _, _ string) (model.AuthRedirect, error) {
	return m.authRedirect, nil
}

func (m *mockBankingClient) CreateSession(_ context.Context, _ string) (model.NewSession, error) {
	return m.newSession, m.createSessErr
}

func (m *mockBankingClient) GetSession(_ context.Context, _ string) (model.Session, error) {
	return m.session, m.sessionErr
}

func (m *mockBankingClient) GetAccountBalances(_ context.Context, _ string) ([]model.Balance, error) {
	return m.balances, nil
}

func (m *mockBankingClient) GetAccountTransactions(_ context.Context, _, _, _ string) (model.TransactionPage, error) {
	return m.page, m.transactions
}

type mockCredentialStore struct {
	nextID int64
	creds  []model.Credential

	listProvider string
}

func (m *mockCredentialStore) Upsert(_ context.Context, in driven.UpsertCredential) (model.Credential, error) {
	for i, cred := range m.creds {
		if cred.UserID == in.UserID && cred.Provider == in.Provider && cred.ProviderUID == in.ProviderUID {
			m.creds[i].ExpiresAt = in.ExpiresAt
			return m.creds[i], nil
		}
	}
	m.nextID++
	cred := model.Credential{
		ID:          m.nextID,
		UserID:      in.UserID,
		Provider:    in.Provider,
		ProviderUID: in.ProviderUID,
		ExpiresAt:   in.ExpiresAt,
	}
	m.creds = append(m.creds, cred)
	return cred, nil
}

func (m *mockCredentialStore) Get(_ context.Context, _ uuid.UUID, _, _ string) (*model.Credential, error) {
	return nil, nil
}

func (m *mockCredentialStore) ListByUser(_ context.Context, userID uuid.UUID, provider string) ([]model.Credential, error) {
	m.listProvider = provider
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
	landed int
}

func (m *mockTransactionStore) AppendBatch(_ context.Context, txs []model.TaggedTransaction) error {
	m.landed += len(txs)
	return nil
}

func (m *mockTransactionStore) CountByUser(_ context.Context, _ uuid.UUID) (int64, error) {
	return int64(m.landed), nil
}

// --- Test helpers ---

var testAuthSecret = []byte("test-auth-secret")

func newTestHandler(client *mockBankingClient, creds *mockCredentialStore) http.Handler {
	logger := slog.New(slog.DiscardHandler)
	banking := application.NewBankingService(client, 90)
	connections := application.NewConnectionService(client, creds)
	ingest := application.NewIngestService(client, creds, &mockTransactionStore{}, 90)

	h := httphandler.NewHandler(banking, connections, ingest, creds, testAuthSecret, logger)
	return httphandler.NewServeMux(h, logger)
}

// signToken produces a valid user bearer token for the given user id.
func signToken(t *testing.T, userID uuid.UUID, secret []byte) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, handler http.Handler, method, target, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func seedCredential(t *testing.T, creds *mockCredentialStore, userID uuid.UUID, providerUID string, expiresAt time.Time) model.Credential {
	t.Helper()

	cred, err := creds.Upsert(context.Background(), driven.UpsertCredential{
		UserID:      userID,
		Provider:    model.ProviderEnableBanking,
		ProviderUID: providerUID,
		AccessToken: "access",
		ExpiresAt:   expiresAt,
	})
	require.NoError(t, err)
	return cred
}

// --- Tests ---

func TestHealth_NoTokenRequired(t *testing.T) {
	handler := newTestHandler(&mockBankingClient{}, &mockCredentialStore{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestListBanks_NoTokenRequired(t *testing.T) {
	client := &mockBankingClient{banks: []model.Bank{{Name: "Nordea", Country: "FI"}}}
	handler := newTestHandler(client, &mockCredentialStore{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/banks", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var banks []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &banks))
	require.Len(t, banks, 1)
	assert.Equal(t, "Nordea", banks[0]["name"])
}

func TestListBanks_UpstreamErrorIs502(t *testing.T) {
	client := &mockBankingClient{
		banksErr: &enablebanking.APIError{StatusCode: http.StatusServiceUnavailable, Body: "maintenance"},
	}
	handler := newTestHandler(client, &mockCredentialStore{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/banks", "", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "maintenance")
}

func TestAuth_MissingToken(t *testing.T) {
	handler := newTestHandler(&mockBankingClient{}, &mockCredentialStore{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/connect/connections", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_WrongSecret(t *testing.T) {
	handler := newTestHandler(&mockBankingClient{}, &mockCredentialStore{})
	bad := signToken(t, uuid.New(), []byte("some-other-secret"))

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/connect/connections", bad, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_NonUUIDSubject(t *testing.T) {
	handler := newTestHandler(&mockBankingClient{}, &mockCredentialStore{})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "not-a-uuid"})
	signed, err := token.SignedString(testAuthSecret)
	require.NoError(t, err)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/connect/connections", signed, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAuthURL(t *testing.T) {
	client := &mockBankingClient{
		authRedirect: model.AuthRedirect{AuthURL: "https://bank.example/auth", State: "state-1"},
	}
	handler := newTestHandler(client, &mockCredentialStore{})
	token := signToken(t, uuid.New(), testAuthSecret)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/banking/connect/auth-url", token,
		`{"bank_name":"Nordea","bank_country":"FI"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://bank.example/auth", resp["auth_url"])
	assert.Equal(t, "state-1", resp["state"])
}

func TestCreateAuthURL_MissingFields(t *testing.T) {
	handler := newTestHandler(&mockBankingClient{}, &mockCredentialStore{})
	token := signToken(t, uuid.New(), testAuthSecret)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/banking/connect/auth-url", token,
		`{"bank_name":"Nordea"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorizationCallback(t *testing.T) {
	validUntil := time.Now().UTC().Add(10 * 24 * time.Hour)
	client := &mockBankingClient{
		newSession: model.NewSession{SessionID: "sess-1", AccessToken: "at-1"},
		session: model.Session{
			Status:   model.SessionStatusAuthorized,
			Bank:     model.Bank{Name: "Nordea", Country: "FI"},
			Accounts: []model.Account{{UID: "acc-1"}},
			Access:   model.SessionAccess{ValidUntil: validUntil},
		},
	}
	creds := &mockCredentialStore{}
	handler := newTestHandler(client, creds)
	userID := uuid.New()
	token := signToken(t, userID, testAuthSecret)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/connect/callback?code=auth-code", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Nordea", resp["bank_name"])
	assert.Equal(t, "FI", resp["bank_country"])
	assert.Equal(t, float64(1), resp["account_count"])

	require.Len(t, creds.creds, 1)
	assert.Equal(t, "nordea_fi", creds.creds[0].ProviderUID)
	assert.Equal(t, userID, creds.creds[0].UserID)
}

func TestAuthorizationCallback_MissingCode(t *testing.T) {
	handler := newTestHandler(&mockBankingClient{}, &mockCredentialStore{})
	token := signToken(t, uuid.New(), testAuthSecret)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/connect/callback", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorizationCallback_RejectedSessionIs400(t *testing.T) {
	client := &mockBankingClient{
		newSession: model.NewSession{SessionID: "sess-1", AccessToken: "at-1"},
		session:    model.Session{Status: model.SessionStatusPending},
	}
	handler := newTestHandler(client, &mockCredentialStore{})
	token := signToken(t, uuid.New(), testAuthSecret)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/connect/callback?code=auth-code", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListConnections_TaggedEntries(t *testing.T) {
	userID := uuid.New()
	creds := &mockCredentialStore{}
	seedCredential(t, creds, userID, "nordea_fi", time.Now().Add(24*time.Hour))

	client := &mockBankingClient{
		session: model.Session{
			Status:   model.SessionStatusAuthorized,
			Bank:     model.Bank{Name: "Nordea", Country: "FI"},
			Accounts: []model.Account{{UID: "acc-1"}, {UID: "acc-2"}},
			Access:   model.SessionAccess{ValidUntil: time.Now().Add(24 * time.Hour)},
		},
	}
	handler := newTestHandler(client, creds)
	token := signToken(t, userID, testAuthSecret)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/connect/connections", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, true, resp[0]["connected"])
	assert.Equal(t, "nordea_fi", resp[0]["provider_uid"])

	conn := resp[0]["connection"].(map[string]any)
	assert.Equal(t, "Nordea", conn["bank_name"])
	assert.Equal(t, float64(2), conn["account_count"])
}

func TestAccountTransactions_InvalidDaysBack(t *testing.T) {
	handler := newTestHandler(&mockBankingClient{}, &mockCredentialStore{})
	token := signToken(t, uuid.New(), testAuthSecret)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/accounts/acc-1/transactions?days_back=soon", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAccountTransactions_PageWithContinuation(t *testing.T) {
	client := &mockBankingClient{
		page: model.TransactionPage{
			Transactions:    []model.Transaction{{EntryReference: "ref-1", Amount: "-1.00", Currency: "EUR"}},
			ContinuationKey: "page-2",
		},
	}
	handler := newTestHandler(client, &mockCredentialStore{})
	token := signToken(t, uuid.New(), testAuthSecret)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/banking/accounts/acc-1/transactions", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "page-2", resp["continuation_key"])
	assert.Len(t, resp["transactions"], 1)
}

func TestListCredentials_RedactedView(t *testing.T) {
	userID := uuid.New()
	creds := &mockCredentialStore{}
	live := seedCredential(t, creds, userID, "nordea_fi", time.Now().Add(24*time.Hour))
	seedCredential(t, creds, userID, "op_fi", time.Now().Add(-time.Hour))

	handler := newTestHandler(&mockBankingClient{}, creds)
	token := signToken(t, userID, testAuthSecret)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/auth/credentials?provider=enablebanking", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "enablebanking", creds.listProvider)

	var resp []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)

	assert.Equal(t, float64(live.ID), resp[0]["id"])
	assert.Equal(t, false, resp[0]["is_expired"])
	assert.Equal(t, true, resp[1]["is_expired"])

	// Token material never leaves the API.
	assert.NotContains(t, rec.Body.String(), "access")
}

func TestDeleteCredential(t *testing.T) {
	userID := uuid.New()
	creds := &mockCredentialStore{}
	cred := seedCredential(t, creds, userID, "nordea_fi", time.Now().Add(24*time.Hour))

	handler := newTestHandler(&mockBankingClient{}, creds)
	token := signToken(t, userID, testAuthSecret)

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/auth/credentials/9999", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, handler, http.MethodDelete, "/api/v1/auth/credentials/abc", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	target := "/api/v1/auth/credentials/" + strconv.FormatInt(cred.ID, 10)
	rec = doRequest(t, handler, http.MethodDelete, target, token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, handler, http.MethodDelete, target, token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCredential_OtherUsersRowIs404(t *testing.T) {
	owner := uuid.New()
	creds := &mockCredentialStore{}
	cred := seedCredential(t, creds, owner, "nordea_fi", time.Now().Add(24*time.Hour))

	handler := newTestHandler(&mockBankingClient{}, creds)
	strangerToken := signToken(t, uuid.New(), testAuthSecret)

	target := "/api/v1/auth/credentials/" + strconv.FormatInt(cred.ID, 10)
	rec := doRequest(t, handler, http.MethodDelete, target, strangerToken, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunIngestion_NoCredentialsIs404(t *testing.T) {
	handler := newTestHandler(&mockBankingClient{}, &mockCredentialStore{})
	token := signToken(t, uuid.New(), testAuthSecret)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/ingestion/banking", token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunIngestion_ReportsStats(t *testing.T) {
	userID := uuid.New()
	creds := &mockCredentialStore{}
	seedCredential(t, creds, userID, "nordea_fi", time.Now().Add(24*time.Hour))

	client := &mockBankingClient{
		session: model.Session{
			Status:   model.SessionStatusAuthorized,
			Bank:     model.Bank{Name: "Nordea", Country: "FI"},
			Accounts: []model.Account{{UID: "acc-1"}},
		},
		page: model.TransactionPage{
			Transactions: []model.Transaction{
				{EntryReference: "ref-1", Amount: "-1.00"},
				{EntryReference: "ref-2", Amount: "-2.00"},
			},
		},
	}
	handler := newTestHandler(client, creds)
	token := signToken(t, userID, testAuthSecret)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/ingestion/banking", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp["processed_banks"])
	assert.Equal(t, 2, resp["total_transactions"])
}
