package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/dbx"
	"github.com/dmitrijs2005/enclavekeeper/internal/logging"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	"github.com/dmitrijs2005/enclavekeeper/internal/timex"
)

// ReceiptStore turns a sensitive submission into a signed receipt carrying
// only the safe derivative.
type ReceiptStore interface {
	ProcessUserData(ctx context.Context, userID, payload string) (*models.SubmitDataResult, error)
}

// ReceiptService stores receipts in PostgreSQL. The receipt and its
// data_received audit entry are written in one transaction; the audit insert
// runs under a savepoint so its failure never loses the receipt.
type ReceiptService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	signer      *signing.Signer
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewReceiptService(db *sql.DB, m repomanager.RepositoryManager, signer *signing.Signer, logger logging.Logger, mt *metrics.Metrics) *ReceiptService {
	return &ReceiptService{
		db:          db,
		repomanager: m,
		signer:      signer,
		logger:      logger.With("module", "receipts"),
		metrics:     mt,
		now:         time.Now,
	}
}

// ProcessUserData hashes the user id, derives the safe label and discards the
// payload. Nothing derived from payload other than the label leaves this
// function.
func (s *ReceiptService) ProcessUserData(ctx context.Context, userID, payload string) (*models.SubmitDataResult, error) {
	if userID == "" || payload == "" {
		return nil, fmt.Errorf("%w: userId and sensitivePayload are required", common.ErrInvalidInput)
	}

	now := s.now().UTC()
	ts := timex.ISOMillis(now)
	userIDHash := common.HashIdentifier(userID)
	derivative := ExtractSafeDerivative(payload)
	signature := s.signer.Sign(signing.DataReceivedMessage(userIDHash, derivative, ts))

	suffix, err := common.MakeRandHexString(8)
	if err != nil {
		return nil, fmt.Errorf("error generating receipt id: %w", err)
	}
	receiptID := "receipt_" + suffix

	receipt := &models.Receipt{
		ReceiptID:      receiptID,
		UserIDHash:     userIDHash,
		SafeDerivative: derivative,
		Signature:      signature,
		CreatedAt:      now,
		RawDiscardedAt: now,
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Receipts(tx).Create(ctx, receipt); err != nil {
			return fmt.Errorf("error storing receipt: %w", err)
		}

		auditErr := dbx.WithSavepoint(ctx, tx, "audit", func(ctx context.Context, tx dbx.DBTX) error {
			_, err := s.repomanager.Audit(tx).Append(ctx, models.ActionDataReceived, map[string]any{
				"receiptId":      receiptID,
				"userIdHash":     userIDHash,
				"safeDerivative": derivative,
				"timestamp":      ts,
			}, &signature)
			return err
		})
		if auditErr != nil {
			s.metrics.AuditFailure(models.ActionDataReceived)
			s.logger.Warn(ctx, "data_received audit entry dropped", "receipt_id", receiptID, "error", auditErr)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	s.metrics.Receipt()
	s.logger.Info(ctx, "receipt issued", "receipt_id", receiptID, "derivative", derivative)

	return &models.SubmitDataResult{
		ReceiptID:      receiptID,
		SafeDerivative: derivative,
		AuditEntry: models.ReceiptAuditEntry{
			Action:         models.ActionDataReceived,
			UserIDHash:     userIDHash,
			SafeDerivative: derivative,
			Timestamp:      ts,
			Signature:      signature,
		},
	}, nil
}

// UnavailableReceiptService answers every submission when the enclave runs
// without a database.
type UnavailableReceiptService struct{}

func (UnavailableReceiptService) ProcessUserData(context.Context, string, string) (*models.SubmitDataResult, error) {
	return nil, common.ErrStorageUnavailable
}
