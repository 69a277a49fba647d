package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// BankResponse is the JSON representation of an available bank.
type BankResponse struct {
	Name    string `json:"name"`
	Country string `json:"country"`
	Logo    string `json:"logo,omitempty"`
}

func toBankResponse(bank model.Bank) BankResponse {
	return BankResponse{Name: bank.Name, Country: bank.Country, Logo: bank.Logo}
}

// AuthURLRequest is the body for starting a bank authorization.
type AuthURLRequest struct {
	BankName    string `json:"bank_name"`
	BankCountry string `json:"bank_country"`
}

// AuthURLResponse carries the URL the user must visit to authorize a bank.
type AuthURLResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// ConnectionSummaryResponse is returned when an authorization callback
// completes.
type ConnectionSummaryResponse struct {
	BankName     string `json:"bank_name"`
	BankCountry  string `json:"bank_country"`
	AccountCount int    `json:"account_count"`
	ExpiresAt    string `json:"expires_at"`
}

func toConnectionSummaryResponse(s model.ConnectionSummary) ConnectionSummaryResponse {
	return ConnectionSummaryResponse{
		BankName:     s.BankName,
		BankCountry:  s.BankCountry,
		AccountCount: s.AccountCount,
		ExpiresAt:    s.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// ConnectionResponse is the live state of one bank connection.
type ConnectionResponse struct {
	BankName     string `json:"bank_name"`
	BankCountry  string `json:"bank_country"`
	Status       string `json:"status"`
	AccountCount int    `json:"account_count"`
	ExpiresAt    string `json:"expires_at"`
	LastUpdate   string `json:"last_update,omitempty"`
}

// ConnectionResultResponse is one entry of the connection listing. Connected
// entries carry the live state; failed ones carry the failure reason.
type ConnectionResultResponse struct {
	CredentialID  int64               `json:"credential_id"`
	ProviderUID   string              `json:"provider_uid"`
	Connected     bool                `json:"connected"`
	Connection    *ConnectionResponse `json:"connection,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

func toConnectionResultResponse(r model.ConnectionResult) ConnectionResultResponse {
	resp := ConnectionResultResponse{
		CredentialID:  r.CredentialID,
		ProviderUID:   r.ProviderUID,
		Connected:     r.OK(),
		FailureReason: r.FailureReason,
	}
	if r.Connection != nil {
		conn := &ConnectionResponse{
			BankName:     r.Connection.Bank.Name,
			BankCountry:  r.Connection.Bank.Country,
			Status:       r.Connection.Status,
			AccountCount: r.Connection.AccountCount,
			ExpiresAt:    r.Connection.ExpiresAt.UTC().Format(time.RFC3339),
		}
		if !r.Connection.LastUpdate.IsZero() {
			conn.LastUpdate = r.Connection.LastUpdate.UTC().Format(time.RFC3339)
		}
		resp.Connection = conn
	}
	return resp
}

// BalanceResponse is the JSON representation of one account balance.
type BalanceResponse struct {
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func toBalanceResponse(b model.Balance) BalanceResponse {
	return BalanceResponse{Name: b.Name, Type: b.Type, Amount: b.Amount, Currency: b.Currency}
}

// TransactionResponse is the JSON representation of one transaction.
type TransactionResponse struct {
	EntryReference string `json:"entry_reference,omitempty"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	CreditDebit    string `json:"credit_debit"`
	Status         string `json:"status,omitempty"`
	BookingDate    string `json:"booking_date,omitempty"`
	ValueDate      string `json:"value_date,omitempty"`
	CreditorName   string `json:"creditor_name,omitempty"`
	DebtorName     string `json:"debtor_name,omitempty"`
	Description    string `json:"description,omitempty"`
}

func toTransactionResponse(tx model.Transaction) TransactionResponse {
	return TransactionResponse{
		EntryReference: tx.EntryReference,
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		CreditDebit:    tx.CreditDebit,
		Status:         tx.Status,
		BookingDate:    tx.BookingDate,
		ValueDate:      tx.ValueDate,
		CreditorName:   tx.CreditorName,
		DebtorName:     tx.DebtorName,
		Description:    tx.Description,
	}
}

// TransactionPageResponse is one page of transactions plus the key for the
// next page, empty when there is none.
type TransactionPageResponse struct {
	Transactions    []TransactionResponse `json:"transactions"`
	ContinuationKey string                `json:"continuation_key,omitempty"`
}

func toTransactionPageResponse(page model.TransactionPage) TransactionPageResponse {
	resp := TransactionPageResponse{
		Transactions:    make([]TransactionResponse, 0, len(page.Transactions)),
		ContinuationKey: page.ContinuationKey,
	}
	for _, tx := range page.Transactions {
		resp.Transactions = append(resp.Transactions, toTransactionResponse(tx))
	}
	return resp
}

// CredentialResponse is the redacted view of a stored credential. Token
// material never appears here.
type CredentialResponse struct {
	ID          int64  `json:"id"`
	Provider    string `json:"provider"`
	ProviderUID string `json:"provider_uid"`
	ExpiresAt   string `json:"expires_at"`
	IsExpired   bool   `json:"is_expired"`
}

func toCredentialResponse(cred model.Credential, now time.Time) CredentialResponse {
	return CredentialResponse{
		ID:          cred.ID,
		Provider:    cred.Provider,
		ProviderUID: cred.ProviderUID,
		ExpiresAt:   cred.ExpiresAt.UTC().Format(time.RFC3339),
		IsExpired:   cred.Expired(now),
	}
}

// IngestStatsResponse summarizes one ingestion run.
type IngestStatsResponse struct {
	ProcessedBanks    int `json:"processed_banks"`
	TotalTransactions int `json:"total_transactions"`
}

// HealthResponse is the health check response body.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
