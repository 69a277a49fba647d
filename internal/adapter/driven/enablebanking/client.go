// Package enablebanking implements the BankingClient port against the
// Enable Banking REST API.
package enablebanking

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

const defaultBaseURL = "https://api.enablebanking.com"

// authTokenTTL is the validity of the self-signed bearer JWT.
const authTokenTTL = time.Hour

// consentValidity is the access window requested when starting a bank
// authorization.
const consentValidity = 10 * 24 * time.Hour

// Compile-time interface satisfaction check.
var _ driven.BankingClient = (*Client)(nil)

// Client implements the driven.BankingClient port. It authenticates with a
// short-lived self-signed RS256 JWT (the application id rides in the kid
// header), re-signed on demand before the previous one expires.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	applicationID string
	signingKey    *rsa.PrivateKey

	mu         sync.Mutex
	authHeader string
	authExpiry time.Time
}

// NewClient creates a production client. The private key PEM and application
// id are injected so tests and deployments control key material explicitly;
// an empty baseURL selects the public API endpoint. Construction fails on an
// unusable key. Transport: an in-memory httpcache layer (bank discovery
// responses are cache-friendly GETs) under a request-timeout http.Client.
func NewClient(applicationID string, privateKeyPEM []byte, baseURL string, timeout time.Duration) (*Client, error) {
	key, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   timeout,
		},
		applicationID: applicationID,
		signingKey:    key,
	}, nil
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base
// URL. This constructor is intended for testing, allowing injection of an
// httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, applicationID string, privateKeyPEM []byte) (*Client, error) {
	key, err := parseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		httpClient:    httpClient,
		applicationID: applicationID,
		signingKey:    key,
	}, nil
}

// bearerHeader returns the Authorization header value, re-signing the JWT
// when the cached one is within a minute of expiry.
func (c *Client) bearerHeader(now time.Time) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.authHeader != "" && now.Before(c.authExpiry.Add(-time.Minute)) {
		return c.authHeader, nil
	}

	token, err := signAuthToken(c.applicationID, c.signingKey, now)
	if err != nil {
		return "", err
	}
	c.authHeader = "Bearer " + token
	c.authExpiry = now.Add(authTokenTTL)
	return c.authHeader, nil
}

// signAuthToken builds the RS256-signed bearer JWT the aggregator expects:
// iss/aud fixed by the API, one hour validity, application id as kid.
func signAuthToken(applicationID string, key *rsa.PrivateKey, now time.Time) (string, error) {
	iat := now.Unix()
	claims := jwt.MapClaims{
		"iss": "enablebanking.com",
		"aud": "api.enablebanking.com",
		"iat": iat,
		"exp": iat + int64(authTokenTTL.Seconds()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = applicationID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("enablebanking: sign auth token: %w", err)
	}
	return signed, nil
}

// parseRSAPrivateKey loads an RSA private key from PEM bytes. Handles both
// PKCS1 and PKCS8 encodings.
func parseRSAPrivateKey(pemKey []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("enablebanking: invalid PEM for RSA key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("enablebanking: parse PKCS1: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("enablebanking: parse PKCS8: %w", err)
		}
		key, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("enablebanking: not an RSA private key")
		}
		return key, nil
	default:
		return nil, fmt.Errorf("enablebanking: unsupported PEM type %q", block.Type)
	}
}

// GetApplication returns the registered application details.
func (c *Client) GetApplication(ctx context.Context) (model.Application, error) {
	var resp applicationJSON
	if err := c.get(ctx, "/application", nil, &resp); err != nil {
		return model.Application{}, err
	}

	return model.Application{
		Name:         resp.Name,
		RedirectURLs: resp.RedirectURLs,
	}, nil
}

// ListBanks returns the available ASPSPs.
func (c *Client) ListBanks(ctx context.Context) ([]model.Bank, error) {
	var resp aspspsResponse
	if err := c.get(ctx, "/aspsps", nil, &resp); err != nil {
		return nil, err
	}

	banks := make([]model.Bank, 0, len(resp.ASPSPs))
	for _, a := range resp.ASPSPs {
		banks = append(banks, mapBank(a))
	}
	return banks, nil
}

// StartAuthorization begins the authorization flow for one bank, requesting
// a 10-day consent window. The state token is freshly generated per call so
// concurrent authorization attempts cannot be replayed against each other.
func (c *Client) StartAuthorization(ctx context.Context, bankName, bankCountry, redirectURL string) (model.AuthRedirect, error) {
	req := startAuthRequest{
		Access: accessJSON{
			ValidUntil: time.Now().UTC().Add(consentValidity).Format(time.RFC3339),
		},
		ASPSP: aspspJSON{
			Name:    bankName,
			Country: bankCountry,
		},
		State:       uuid.NewString(),
		RedirectURL: redirectURL,
		PSUType:     "personal",
	}

	var resp startAuthResponse
	if err := c.post(ctx, "/auth", req, &resp); err != nil {
		return model.AuthRedirect{}, err
	}

	return model.AuthRedirect{
		AuthURL: resp.URL,
		State:   resp.State,
	}, nil
}

// CreateSession exchanges a one-time authorization code for a session.
func (c *Client) CreateSession(ctx context.Context, authCode string) (model.NewSession, error) {
	var resp createSessionResponse
	if err := c.post(ctx, "/sessions", createSessionRequest{Code: authCode}, &resp); err != nil {
		return model.NewSession{}, err
	}

	return model.NewSession{
		SessionID:    resp.SessionID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}, nil
}

// GetSession returns the current state of a session.
func (c *Client) GetSession(ctx context.Context, sessionRef string) (model.Session, error) {
	var resp sessionResponse
	if err := c.get(ctx, "/sessions/"+url.PathEscape(sessionRef), nil, &resp); err != nil {
		return model.Session{}, err
	}
	return mapSession(resp), nil
}

// GetAccountBalances returns the balances of one account.
func (c *Client) GetAccountBalances(ctx context.Context, accountUID string) ([]model.Balance, error) {
	var resp balancesResponse
	if err := c.get(ctx, "/accounts/"+url.PathEscape(accountUID)+"/balances", nil, &resp); err != nil {
		return nil, err
	}

	balances := make([]model.Balance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		balances = append(balances, mapBalance(b))
	}
	return balances, nil
}

// GetAccountTransactions returns one page of transactions. The continuation
// key, when non-empty, is passed through as a query parameter; the client
// itself never loops.
func (c *Client) GetAccountTransactions(ctx context.Context, accountUID, dateFrom, continuationKey string) (model.TransactionPage, error) {
	query := url.Values{}
	query.Set("date_from", dateFrom)
	if continuationKey != "" {
		query.Set("continuation_key", continuationKey)
	}

	var resp transactionsResponse
	if err := c.get(ctx, "/accounts/"+url.PathEscape(accountUID)+"/transactions", query, &resp); err != nil {
		return model.TransactionPage{}, err
	}

	txs := make([]model.Transaction, 0, len(resp.Transactions))
	for _, tx := range resp.Transactions {
		txs = append(txs, mapTransaction(tx))
	}

	return model.TransactionPage{
		Transactions:    txs,
		ContinuationKey: resp.ContinuationKey,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, out)
}

// do performs one request and decodes the JSON response into out. Any
// non-2xx status becomes an *APIError with the upstream status and body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("enablebanking: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("enablebanking: create request: %w", err)
	}
	auth, err := c.bearerHeader(time.Now())
	if err != nil {
		return fmt.Errorf("enablebanking: refresh auth token: %w", err)
	}
	req.Header.Set("Authorization", auth)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("enablebanking: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("enablebanking: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("enablebanking: decode %s response: %w", path, err)
		}
	}
	return nil
}
