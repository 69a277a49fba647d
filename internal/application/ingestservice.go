package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

// ErrNoCredentials is returned when an ingestion run is requested for a user
// with no stored bank credentials.
var ErrNoCredentials = errors.New("no bank credentials stored")

// IngestService pulls transactions for every bank a user has connected and
// lands them in the raw transaction sink.
type IngestService struct {
	client       driven.BankingClient
	creds        driven.CredentialStore
	txs          driven.TransactionStore
	lookbackDays int
	logger       *slog.Logger
}

// NewIngestService creates a new IngestService. lookbackDays <= 0 falls back
// to DefaultLookbackDays.
func NewIngestService(client driven.BankingClient, creds driven.CredentialStore, txs driven.TransactionStore, lookbackDays int) *IngestService {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	return &IngestService{
		client:       client,
		creds:        creds,
		txs:          txs,
		lookbackDays: lookbackDays,
		logger:       slog.Default(),
	}
}

// IngestUser runs one ingestion pass over all of the user's connected banks.
// Banks whose session is no longer authorized are skipped and counted out of
// the stats; any fetch or landing error aborts the whole run so a partial
// page is never silently dropped.
func (s *IngestService) IngestUser(ctx context.Context, userID uuid.UUID) (model.IngestStats, error) {
	creds, err := s.creds.ListByUser(ctx, userID, model.ProviderEnableBanking)
	if err != nil {
		return model.IngestStats{}, fmt.Errorf("list credentials: %w", err)
	}
	if len(creds) == 0 {
		return model.IngestStats{}, ErrNoCredentials
	}

	dateFrom := lookbackDate(time.Now(), s.lookbackDays)

	var stats model.IngestStats
	for _, cred := range creds {
		session, err := s.client.GetSession(ctx, cred.ProviderUID)
		if err != nil {
			return model.IngestStats{}, fmt.Errorf("fetch session %s: %w", cred.ProviderUID, err)
		}
		if session.Status != model.SessionStatusAuthorized {
			s.logger.Warn("skipping unauthorized bank session",
				"user_id", userID,
				"provider_uid", cred.ProviderUID,
				"status", session.Status,
			)
			continue
		}

		for _, account := range session.Accounts {
			landed, err := s.ingestAccount(ctx, userID, account, dateFrom)
			if err != nil {
				return model.IngestStats{}, fmt.Errorf("ingest account %s: %w", account.UID, err)
			}
			stats.TotalTransactions += landed
		}

		stats.ProcessedBanks++
	}

	s.logger.Info("ingestion run complete",
		"user_id", userID,
		"processed_banks", stats.ProcessedBanks,
		"total_transactions", stats.TotalTransactions,
	)

	return stats, nil
}

// ingestAccount pages through one account's transactions and lands each page
// as it arrives. Returns the number of transactions landed.
func (s *IngestService) ingestAccount(ctx context.Context, userID uuid.UUID, account model.Account, dateFrom string) (int, error) {
	var (
		landed          int
		continuationKey string
	)

	for {
		page, err := s.client.GetAccountTransactions(ctx, account.UID, dateFrom, continuationKey)
		if err != nil {
			return 0, err
		}

		if len(page.Transactions) > 0 {
			now := time.Now().UTC()
			tagged := make([]model.TaggedTransaction, 0, len(page.Transactions))
			for _, tx := range page.Transactions {
				tagged = append(tagged, model.TaggedTransaction{
					Transaction: tx,
					UserID:      userID,
					AccountUID:  account.UID,
					AccountName: account.Name,
					AccountIBAN: account.IBAN,
					IngestedAt:  now,
				})
			}
			if err := s.txs.AppendBatch(ctx, tagged); err != nil {
				return 0, fmt.Errorf("land transactions: %w", err)
			}
			landed += len(tagged)
		}

		if page.ContinuationKey == "" {
			return landed, nil
		}
		continuationKey = page.ContinuationKey
	}
}
