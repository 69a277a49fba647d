package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
	"github.com/ericfisherdev/bankfeed/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TransactionStore = (*TransactionRepo)(nil)

// TransactionRepo is the SQLite implementation of the TransactionStore port
// interface. The raw_transactions table is an append-only sink; rows are
// never updated or deleted by this service.
type TransactionRepo struct {
	db *DB
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(db *DB) *TransactionRepo {
	return &TransactionRepo{db: db}
}

// AppendBatch lands one fetched page of tagged transactions inside a single
// transaction, so a page is either fully landed or not at all.
func (r *TransactionRepo) AppendBatch(ctx context.Context, txs []model.TaggedTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	const query = `
		INSERT INTO raw_transactions (
			user_id, account_uid, account_name, account_iban,
			entry_reference, amount, currency, credit_debit, status,
			booking_date, value_date, creditor_name, debtor_name, description,
			ingested_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	dbtx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append batch: %w", err)
	}
	defer dbtx.Rollback()

	stmt, err := dbtx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare append batch: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		_, err := stmt.ExecContext(ctx,
			tx.UserID.String(), tx.AccountUID, tx.AccountName, tx.AccountIBAN,
			tx.EntryReference, tx.Amount, tx.Currency, tx.CreditDebit, tx.Status,
			tx.BookingDate, tx.ValueDate, tx.CreditorName, tx.DebtorName, tx.Description,
			tx.IngestedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("append transaction %q: %w", tx.EntryReference, err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit append batch: %w", err)
	}
	return nil
}

// CountByUser returns how many transactions have been landed for a user.
func (r *TransactionRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	const query = `SELECT COUNT(*) FROM raw_transactions WHERE user_id = ?`

	var count int64
	if err := r.db.Reader.QueryRowContext(ctx, query, userID.String()).Scan(&count); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}
