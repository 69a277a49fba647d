package model

import "time"

// ConnectionSummary is returned when an authorization callback completes and
// a credential has been stored.
type ConnectionSummary struct {
	BankName     string
	BankCountry  string
	AccountCount int
	ExpiresAt    time.Time
}

// Connection is the live state of one stored bank connection, re-fetched
// from the aggregator.
type Connection struct {
	Bank         Bank
	Status       string
	AccountCount int
	ExpiresAt    time.Time
	LastUpdate   time.Time
}

// ConnectionResult is one entry of a connection listing. Either Connection
// is set, or FailureReason explains why the live state could not be
// refreshed. A failed refresh never hides the credential entirely.
type ConnectionResult struct {
	CredentialID  int64
	ProviderUID   string
	Connection    *Connection
	FailureReason string
}

// OK reports whether the live session state was fetched successfully.
func (r ConnectionResult) OK() bool { return r.Connection != nil }

// IngestStats aggregates the outcome of one ingestion run.
type IngestStats struct {
	ProcessedBanks    int
	TotalTransactions int
}
