package model

import (
	"time"

	"github.com/google/uuid"
)

// Session status values returned by the aggregator. Anything other than
// AUTHORIZED is treated as not usable for data access.
const (
	SessionStatusAuthorized = "AUTHORIZED"
	SessionStatusPending    = "PENDING"
)

// Bank identifies an ASPSP (a bank reachable through the aggregator).
type Bank struct {
	Name    string
	Country string
	Logo    string
}

// Application describes the registered aggregator application, including the
// redirect URLs the user may be sent back to after bank authorization.
type Application struct {
	Name         string
	RedirectURLs []string
}

// AuthRedirect is the result of starting a bank authorization: the URL the
// user must visit and the anti-replay state token bound to this attempt.
type AuthRedirect struct {
	AuthURL string
	State   string
}

// NewSession is the result of exchanging a one-time authorization code.
// The code is single-use; a second exchange fails upstream.
type NewSession struct {
	SessionID    string
	AccessToken  string
	RefreshToken *string
}

// SessionAccess carries the consent window granted by the bank.
type SessionAccess struct {
	ValidUntil time.Time
}

// Session is the aggregator's view of a completed bank authorization.
type Session struct {
	Status     string
	Bank       Bank
	Accounts   []Account
	Access     SessionAccess
	Authorized time.Time
}

// Account is one bank account accessible through an authorized session.
type Account struct {
	UID  string
	Name string
	IBAN string
}

// Balance is a single balance entry for an account.
type Balance struct {
	Name     string
	Type     string
	Amount   string
	Currency string
}

// Transaction is one raw bank transaction as returned by the aggregator.
// Amounts are kept as decimal strings; nothing in this service does
// arithmetic on them.
type Transaction struct {
	EntryReference string
	Amount         string
	Currency       string
	CreditDebit    string
	Status         string
	BookingDate    string
	ValueDate      string
	CreditorName   string
	DebtorName     string
	Description    string
}

// TransactionPage is one page of transactions. A non-empty ContinuationKey
// must be passed back on the next fetch; an empty one ends pagination.
type TransactionPage struct {
	Transactions    []Transaction
	ContinuationKey string
}

// TaggedTransaction is a Transaction enriched with the ownership context it
// is landed with in the raw transaction sink.
type TaggedTransaction struct {
	Transaction

	UserID      uuid.UUID
	AccountUID  string
	AccountName string
	AccountIBAN string
	IngestedAt  time.Time
}
