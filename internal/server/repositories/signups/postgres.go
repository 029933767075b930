package signups

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/enclavekeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, userIDHash string, sourceID string) (int64, error) {
	query := `
		INSERT INTO signups (user_id_hash, source_cvm)
		VALUES ($1, $2)
		RETURNING id
	`
	source := sql.NullString{String: sourceID, Valid: sourceID != ""}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, userIDHash, source).Scan(&id); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signups`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Truncate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `TRUNCATE TABLE signups RESTART IDENTITY`); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
