package receipts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Create(ctx context.Context, rc *models.Receipt) error {
	query := `
		INSERT INTO user_data_receipts (receipt_id, user_id_hash, safe_derivative, signature, created_at, raw_discarded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query,
		rc.ReceiptID, rc.UserIDHash, rc.SafeDerivative, rc.Signature, rc.CreatedAt, rc.RawDiscardedAt,
	); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, receiptID string) (*models.Receipt, error) {
	query := `
		SELECT receipt_id, user_id_hash, safe_derivative, signature, created_at, raw_discarded_at, deleted_at, deletion_tx_hash
		FROM user_data_receipts
		WHERE receipt_id = $1
	`
	var (
		rc        models.Receipt
		deletedAt sql.NullTime
		txHash    sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, receiptID).Scan(
		&rc.ReceiptID, &rc.UserIDHash, &rc.SafeDerivative, &rc.Signature,
		&rc.CreatedAt, &rc.RawDiscardedAt, &deletedAt, &txHash,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rc.DeletedAt = &t
	}
	if txHash.Valid {
		s := txHash.String
		rc.DeletionTxHash = &s
	}
	return &rc, nil
}

// MarkDeleted keeps an existing deletion_tx_hash when txHash is nil, so a
// later attestation without ledger access does not erase an earlier reference.
// Only a receipt owned by userIDHash is touched.
func (r *PostgresRepository) MarkDeleted(ctx context.Context, receiptID, userIDHash string, deletedAt time.Time, txHash *string) error {
	query := `
		UPDATE user_data_receipts
		SET deleted_at = $2, deletion_tx_hash = COALESCE($3, deletion_tx_hash)
		WHERE receipt_id = $1 AND user_id_hash = $4
	`
	res, err := r.db.ExecContext(ctx, query, receiptID, deletedAt, txHash, userIDHash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_data_receipts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
