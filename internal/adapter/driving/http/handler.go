// Package httphandler is the HTTP driving adapter serving the REST API.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/bankfeed/internal/adapter/driven/enablebanking"
	"github.com/ericfisherdev/bankfeed/internal/application"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	banking     *application.BankingService
	connections *application.ConnectionService
	ingest      *application.IngestService
	creds       driven.CredentialStore
	authSecret  []byte
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. authSecret is
// the HS256 key user bearer tokens are verified against.
func NewHandler(
	banking *application.BankingService,
	connections *application.ConnectionService,
	ingest *application.IngestService,
	creds driven.CredentialStore,
	authSecret []byte,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		banking:     banking,
		connections: connections,
		ingest:      ingest,
		creds:       creds,
		authSecret:  authSecret,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. Bank discovery and health are the
// only routes served without a user token.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/banking/banks", h.ListBanks)
	mux.HandleFunc("POST /api/v1/banking/connect/auth-url", h.withUser(h.CreateAuthURL))
	mux.HandleFunc("GET /api/v1/banking/connect/callback", h.withUser(h.AuthorizationCallback))
	mux.HandleFunc("GET /api/v1/banking/connect/connections", h.withUser(h.ListConnections))
	mux.HandleFunc("GET /api/v1/banking/accounts/{uid}/balances", h.withUser(h.AccountBalances))
	mux.HandleFunc("GET /api/v1/banking/accounts/{uid}/transactions", h.withUser(h.AccountTransactions))
	mux.HandleFunc("GET /api/v1/auth/credentials", h.withUser(h.ListCredentials))
	mux.HandleFunc("DELETE /api/v1/auth/credentials/{id}", h.withUser(h.DeleteCredential))
	mux.HandleFunc("POST /api/v1/ingestion/banking", h.withUser(h.RunIngestion))
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListBanks returns the banks available for connection.
func (h *Handler) ListBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := h.banking.AvailableBanks(r.Context())
	if err != nil {
		h.writeUpstreamError(w, "failed to list banks", err)
		return
	}

	resp := make([]BankResponse, 0, len(banks))
	for _, bank := range banks {
		resp = append(resp, toBankResponse(bank))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateAuthURL starts an authorization flow for the requested bank.
func (h *Handler) CreateAuthURL(w http.ResponseWriter, r *http.Request) {
	var req AuthURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.BankName == "" || req.BankCountry == "" {
		writeError(w, http.StatusBadRequest, "bank_name and bank_country are required")
		return
	}

	redirect, err := h.banking.AuthURL(r.Context(), req.BankName, req.BankCountry)
	if err != nil {
		h.writeUpstreamError(w, "failed to create auth url", err)
		return
	}

	writeJSON(w, http.StatusOK, AuthURLResponse{AuthURL: redirect.AuthURL, State: redirect.State})
}

// AuthorizationCallback completes an authorization using the code the bank
// redirected back with, and stores the resulting credential.
func (h *Handler) AuthorizationCallback(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code parameter")
		return
	}

	summary, err := h.connections.CompleteAuthorization(r.Context(), userID, code)
	if errors.Is(err, application.ErrAuthorization) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.writeUpstreamError(w, "failed to complete authorization", err)
		return
	}

	writeJSON(w, http.StatusOK, toConnectionSummaryResponse(summary))
}

// ListConnections returns one entry per connected bank with its live state,
// or the reason the state could not be refreshed.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}

	results, err := h.connections.ListConnections(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list connections", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ConnectionResultResponse, 0, len(results))
	for _, result := range results {
		resp = append(resp, toConnectionResultResponse(result))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AccountBalances returns the balances of one account.
func (h *Handler) AccountBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.banking.AccountBalances(r.Context(), r.PathValue("uid"))
	if err != nil {
		h.writeUpstreamError(w, "failed to fetch balances", err)
		return
	}

	resp := make([]BalanceResponse, 0, len(balances))
	for _, balance := range balances {
		resp = append(resp, toBalanceResponse(balance))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AccountTransactions returns one page of an account's transactions.
func (h *Handler) AccountTransactions(w http.ResponseWriter, r *http.Request) {
	daysBack := 0
	if raw := r.URL.Query().Get("days_back"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid days_back")
			return
		}
		daysBack = parsed
	}
	continuationKey := r.URL.Query().Get("continuation_key")

	page, err := h.banking.AccountTransactions(r.Context(), r.PathValue("uid"), daysBack, continuationKey)
	if err != nil {
		h.writeUpstreamError(w, "failed to fetch transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionPageResponse(page))
}

// ListCredentials returns the user's stored credentials as redacted views.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}

	creds, err := h.creds.ListByUser(r.Context(), userID, r.URL.Query().Get("provider"))
	if err != nil {
		h.logger.Error("failed to list credentials", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	now := time.Now().UTC()
	resp := make([]CredentialResponse, 0, len(creds))
	for _, cred := range creds {
		resp = append(resp, toCredentialResponse(cred, now))
	}

	writeJSON(w, http.StatusOK, resp)
}

// DeleteCredential removes one of the user's credentials.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid credential id")
		return
	}

	deleted, err := h.creds.Delete(r.Context(), id, userID)
	if err != nil {
		h.logger.Error("failed to delete credential", "user_id", userID, "credential_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RunIngestion triggers one ingestion run over all of the user's connected
// banks and reports the aggregated stats.
func (h *Handler) RunIngestion(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing user")
		return
	}

	stats, err := h.ingest.IngestUser(r.Context(), userID)
	if errors.Is(err, application.ErrNoCredentials) {
		writeError(w, http.StatusNotFound, "no bank credentials stored")
		return
	}
	if err != nil {
		h.writeUpstreamError(w, "ingestion run failed", err)
		return
	}

	writeJSON(w, http.StatusOK, IngestStatsResponse{
		ProcessedBanks:    stats.ProcessedBanks,
		TotalTransactions: stats.TotalTransactions,
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeUpstreamError maps aggregator failures to 502 and everything else to
// 500, logging the detail server-side either way.
func (h *Handler) writeUpstreamError(w http.ResponseWriter, msg string, err error) {
	var apiErr *enablebanking.APIError
	if errors.As(err, &apiErr) {
		h.logger.Error(msg, "upstream_status", apiErr.StatusCode, "error", err)
		writeError(w, http.StatusBadGateway, "upstream provider error")
		return
	}

	h.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
