package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

// DefaultLookbackDays is how far back transaction fetches reach when the
// caller does not say otherwise.
const DefaultLookbackDays = 90

// BankingService exposes read-side banking operations: bank discovery,
// authorization URL creation, and per-account balance and transaction
// fetches.
type BankingService struct {
	client       driven.BankingClient
	lookbackDays int
	logger       *slog.Logger

	mu          sync.Mutex
	redirectURL string // cached first redirect URL of the registered application
}

// NewBankingService creates a new BankingService. lookbackDays <= 0 falls
// back to DefaultLookbackDays.
func NewBankingService(client driven.BankingClient, lookbackDays int) *BankingService {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return &BankingService{
		client:       client,
		lookbackDays: lookbackDays,
		logger:       slog.Default(),
	}
}

// AvailableBanks returns the banks reachable through the aggregator.
func (s *BankingService) AvailableBanks(ctx context.Context) ([]model.Bank, error) {
	return s.client.ListBanks(ctx)
}

// AuthURL starts an authorization flow for the given bank and returns the
// URL the user must visit, plus the state token bound to this attempt.
func (s *BankingService) AuthURL(ctx context.Context, bankName, bankCountry string) (model.AuthRedirect, error) {
	redirectURL, err := s.applicationRedirectURL(ctx)
	if err != nil {
		return model.AuthRedirect{}, err
	}
	return s.client.StartAuthorization(ctx, bankName, bankCountry, redirectURL)
}

// AccountBalances returns the balances of one account.
func (s *BankingService) AccountBalances(ctx context.Context, accountUID string) ([]model.Balance, error) {
	return s.client.GetAccountBalances(ctx, accountUID)
}

// AccountTransactions returns one page of transactions reaching back
// daysBack days (<= 0 means the configured lookback). The caller passes the
// previous page's continuation key to advance.
func (s *BankingService) AccountTransactions(ctx context.Context, accountUID string, daysBack int, continuationKey string) (model.TransactionPage, error) {
	if daysBack <= 0 {
		daysBack = s.lookbackDays
	}
	dateFrom := lookbackDate(time.Now(), daysBack)
	return s.client.GetAccountTransactions(ctx, accountUID, dateFrom, continuationKey)
}

// applicationRedirectURL returns the first redirect URL registered for the
// application, fetching it once and caching it for the process lifetime.
func (s *BankingService) applicationRedirectURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.redirectURL != "" {
		return s.redirectURL, nil
	}

	app, err := s.client.GetApplication(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch application: %w", err)
	}
	if len(app.RedirectURLs) == 0 {
		return "", fmt.Errorf("application %q has no registered redirect URLs", app.Name)
	}

	s.redirectURL = app.RedirectURLs[0]
	s.logger.Info("cached application redirect url", "application", app.Name)
	return s.redirectURL, nil
}

// lookbackDate formats the UTC calendar date daysBack days before now.
func lookbackDate(now time.Time, daysBack int) string {
	return now.UTC().AddDate(0, 0, -daysBack).Format("2006-01-02")
}
