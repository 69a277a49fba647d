package driven

import (
	"context"

	"github.com/google/uuid"

	"github.com/ericfisherdev/bankfeed/internal/domain/model"
)

// TransactionStore defines the driven port for the raw transaction sink.
// The sink is append-only; nothing in this service updates or deletes
// landed transactions.
type TransactionStore interface {
	// AppendBatch lands one fetched page of tagged transactions.
	AppendBatch(ctx context.Context, txs []model.TaggedTransaction) error

	// CountByUser returns how many transactions have been landed for a user.
	CountByUser(ctx context.Context, userID uuid.UUID) (int64, error)
}
