// Package services contains the enclave's business logic: the audit ledger,
// the signup register, user-data receipts, deletion attestations and signed
// reports. Services own transaction boundaries; repositories only run SQL.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/repomanager"
)

// AuditLedger is the append-only record of everything the enclave did.
// Callers treat Append as best effort: a failure is logged, never surfaced.
type AuditLedger interface {
	Append(ctx context.Context, action string, details map[string]any, signature *string) (int64, error)
	// Query returns entries created within [since, until], oldest first.
	// A nil bound is open.
	Query(ctx context.Context, since, until *time.Time) ([]models.AuditEntry, error)
}

// PostgresAuditLedger appends on the primary and queries on the read pool.
type PostgresAuditLedger struct {
	db          *sql.DB
	read        *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewPostgresAuditLedger(primary, read *sql.DB, m repomanager.RepositoryManager) *PostgresAuditLedger {
	if read == nil {
		read = primary
	}
	return &PostgresAuditLedger{db: primary, read: read, repomanager: m}
}

func (l *PostgresAuditLedger) Append(ctx context.Context, action string, details map[string]any, signature *string) (int64, error) {
	id, err := l.repomanager.Audit(l.db).Append(ctx, action, details, signature)
	if err != nil {
		return 0, fmt.Errorf("error appending audit entry: %w", err)
	}
	return id, nil
}

func (l *PostgresAuditLedger) Query(ctx context.Context, since, until *time.Time) ([]models.AuditEntry, error) {
	entries, err := l.repomanager.Audit(l.read).Range(ctx, since, until)
	if err != nil {
		return nil, fmt.Errorf("error querying audit log: %w", err)
	}
	return entries, nil
}

// NopAuditLedger is the sink used without persistence.
type NopAuditLedger struct{}

func (NopAuditLedger) Append(context.Context, string, map[string]any, *string) (int64, error) {
	return 0, nil
}

func (NopAuditLedger) Query(context.Context, *time.Time, *time.Time) ([]models.AuditEntry, error) {
	return []models.AuditEntry{}, nil
}
