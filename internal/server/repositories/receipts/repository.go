// Package receipts declares the user-data receipt repository.
package receipts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
)

type Repository interface {
	// Create inserts a receipt. CreatedAt and RawDiscardedAt are taken from r.
	Create(ctx context.Context, r *models.Receipt) error

	// Get returns the receipt or common.ErrNotFound.
	Get(ctx context.Context, receiptID string) (*models.Receipt, error)

	// MarkDeleted records the logical deletion and, when non-nil, the
	// external ledger reference. It returns common.ErrNotFound when no
	// receipt with that id belongs to userIDHash.
	MarkDeleted(ctx context.Context, receiptID, userIDHash string, deletedAt time.Time, txHash *string) error

	// Count returns the number of receipts ever issued.
	Count(ctx context.Context) (int64, error)
}
