// Package audit declares the append-only audit ledger repository and its
// PostgreSQL implementation.
package audit

import (
	"context"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
)

// Repository is append-only: there is deliberately no update or delete.
type Repository interface {
	// Append stores a new entry and returns its id.
	Append(ctx context.Context, action string, details map[string]any, signature *string) (int64, error)

	// Range returns entries with since <= created_at <= until in ascending
	// order (created_at, then id). A nil bound is open.
	Range(ctx context.Context, since, until *time.Time) ([]models.AuditEntry, error)
}
