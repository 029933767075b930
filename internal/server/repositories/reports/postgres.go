package reports

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/dbx"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert relies on xmax = 0 holding only for freshly inserted tuples.
func (r *PostgresRepository) Upsert(ctx context.Context, rp *models.Report) (bool, error) {
	query := `
		INSERT INTO reports (report_id, time_window_start, time_window_end, report_json, signature, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (report_id) DO UPDATE
		SET time_window_start = EXCLUDED.time_window_start,
		    time_window_end = EXCLUDED.time_window_end,
		    report_json = EXCLUDED.report_json,
		    signature = EXCLUDED.signature,
		    updated_at = EXCLUDED.updated_at
		RETURNING (xmax = 0) AS inserted
	`
	var inserted bool
	if err := r.db.QueryRowContext(ctx, query,
		rp.ReportID, rp.WindowStart, rp.WindowEnd, rp.ReportJSON, rp.Signature, rp.CreatedAt,
	).Scan(&inserted); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return !inserted, nil
}

func (r *PostgresRepository) Get(ctx context.Context, reportID string) (*models.Report, error) {
	query := `
		SELECT report_id, time_window_start, time_window_end, report_json, signature, updated_at
		FROM reports
		WHERE report_id = $1
	`
	var rp models.Report
	if err := r.db.QueryRowContext(ctx, query, reportID).Scan(
		&rp.ReportID, &rp.WindowStart, &rp.WindowEnd, &rp.ReportJSON, &rp.Signature, &rp.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &rp, nil
}

// List reports the time of the latest generation as CreatedAt.
func (r *PostgresRepository) List(ctx context.Context) ([]models.Report, error) {
	query := `
		SELECT report_id, signature, updated_at
		FROM reports
		ORDER BY updated_at DESC, report_id DESC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]models.Report, 0)
	for rows.Next() {
		var rp models.Report
		if err := rows.Scan(&rp.ReportID, &rp.Signature, &rp.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
