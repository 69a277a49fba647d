package driven

import (
	"context"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
)

// BankingClient defines the driven port for the open-banking aggregator.
// Every method is a single network call; pagination loops belong to the
// caller. Non-success upstream responses surface as a typed provider error
// carrying the upstream status and body.
type BankingClient interface {
	// GetApplication returns the registered application details, including
	// the redirect URLs accepted for authorization callbacks.
	GetApplication(ctx context.Context) (model.Application, error)

	// ListBanks returns the banks (ASPSPs) reachable through the aggregator.
	ListBanks(ctx context.Context) ([]model.Bank, error)

	// StartAuthorization begins a bank authorization flow. Each call uses a
	// fresh random state token, so concurrent attempts never share state.
	StartAuthorization(ctx context.Context, bankName, bankCountry, redirectURL string) (model.AuthRedirect, error)

	// CreateSession exchanges a one-time authorization code for a session.
	CreateSession(ctx context.Context, authCode string) (model.NewSession, error)

	// GetSession returns the current state of a session.
	GetSession(ctx context.Context, sessionRef string) (model.Session, error)

	// GetAccountBalances returns the balances of one account.
	GetAccountBalances(ctx context.Context, accountUID string) ([]model.Balance, error)

	// GetAccountTransactions returns one page of transactions from dateFrom
	// (YYYY-MM-DD). Pass the previous page's continuation key to advance;
	// pass "" for the first page.
	GetAccountTransactions(ctx context.Context, accountUID, dateFrom, continuationKey string) (model.TransactionPage, error)
}
