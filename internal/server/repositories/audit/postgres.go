package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/dbx"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, action string, details map[string]any, signature *string) (int64, error) {
	entry := models.AuditEntry{Details: details}
	payload, err := entry.DetailsJSON()
	if err != nil {
		return 0, fmt.Errorf("encode details: %w", err)
	}

	query := `
		INSERT INTO audit_log (action, details, signature)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	var id int64
	if err := r.db.QueryRowContext(ctx, query, action, payload, signature).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) Range(ctx context.Context, since, until *time.Time) ([]models.AuditEntry, error) {
	var (
		conds []string
		args  []any
	)
	if since != nil {
		args = append(args, *since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if until != nil {
		args = append(args, *until)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	query := `
		SELECT id, action, details, signature, created_at
		FROM audit_log`
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AuditEntry, 0)
	for rows.Next() {
		var (
			e       models.AuditEntry
			details []byte
			sig     sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Action, &details, &sig, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details of entry %d: %w", e.ID, err)
			}
		}
		if sig.Valid {
			s := sig.String
			e.Signature = &s
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entries, nil
}
