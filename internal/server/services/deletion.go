package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/besteffort"
	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/dbx"
	"github.com/dmitrijs2005/enclavekeeper/internal/logging"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/metadata"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	"github.com/dmitrijs2005/enclavekeeper/internal/timex"
)

// ComposeHashSource returns the measured hash of the running deployment.
type ComposeHashSource interface {
	ComposeHash(ctx context.Context) besteffort.Outcome[string]
}

// LedgerSubmitter posts a deletion attestation to the external ledger and
// returns its transaction reference.
type LedgerSubmitter interface {
	Submit(ctx context.Context, att models.DeletionAttestation) besteffort.Outcome[string]
}

// DeletionAttestor signs deletion claims.
type DeletionAttestor interface {
	PostDeletionAttestation(ctx context.Context, receiptID, userIDHash string) (*models.DeletionResult, error)
}

// DeletionRecord is what a DeletionRecorder persists for one attestation.
type DeletionRecord struct {
	ReceiptID  string
	UserIDHash string
	DeletedAt  time.Time
	TxHash     *string
	Details    map[string]any
	Signature  string
}

// ErrReceiptOwner is returned when the attested user does not own the receipt.
var ErrReceiptOwner = errors.New("receipt belongs to another user")

// DeletionRecorder persists the local side effects of an attestation: the
// receipt's deletion marker and the data_deleted audit entry.
type DeletionRecorder interface {
	Record(ctx context.Context, rec DeletionRecord) error
}

// PostgresDeletionRecorder marks the receipt and appends the audit entry in
// one transaction. Each write runs under its own savepoint so that neither a
// missing receipt nor a failed audit insert discards the other.
type PostgresDeletionRecorder struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewPostgresDeletionRecorder(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger, mt *metrics.Metrics) *PostgresDeletionRecorder {
	return &PostgresDeletionRecorder{db: db, repomanager: m, logger: logger.With("module", "deletion"), metrics: mt}
}

func (r *PostgresDeletionRecorder) Record(ctx context.Context, rec DeletionRecord) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		markErr := dbx.WithSavepoint(ctx, tx, "receipt", func(ctx context.Context, tx dbx.DBTX) error {
			repo := r.repomanager.Receipts(tx)
			rc, err := repo.Get(ctx, rec.ReceiptID)
			if err != nil {
				return err
			}
			if rc.UserIDHash != rec.UserIDHash {
				return ErrReceiptOwner
			}
			return repo.MarkDeleted(ctx, rec.ReceiptID, rec.UserIDHash, rec.DeletedAt, rec.TxHash)
		})
		switch {
		case errors.Is(markErr, common.ErrNotFound):
			r.logger.Info(ctx, "no receipt to mark deleted", "receipt_id", rec.ReceiptID)
		case errors.Is(markErr, ErrReceiptOwner):
			r.logger.Warn(ctx, "receipt not marked deleted, owner differs", "receipt_id", rec.ReceiptID)
		case markErr != nil:
			r.logger.Warn(ctx, "receipt deletion marker not stored", "receipt_id", rec.ReceiptID, "error", markErr)
		}

		auditErr := dbx.WithSavepoint(ctx, tx, "audit", func(ctx context.Context, tx dbx.DBTX) error {
			_, err := r.repomanager.Audit(tx).Append(ctx, models.ActionDataDeleted, rec.Details, &rec.Signature)
			return err
		})
		if auditErr != nil {
			r.metrics.AuditFailure(models.ActionDataDeleted)
			r.logger.Warn(ctx, "data_deleted audit entry dropped", "receipt_id", rec.ReceiptID, "error", auditErr)
		}
		return nil
	})
}

// LedgerDeletionRecorder only appends to an AuditLedger. It is used when the
// enclave has no receipt table to update.
type LedgerDeletionRecorder struct {
	audit AuditLedger
}

func NewLedgerDeletionRecorder(audit AuditLedger) *LedgerDeletionRecorder {
	return &LedgerDeletionRecorder{audit: audit}
}

func (r *LedgerDeletionRecorder) Record(ctx context.Context, rec DeletionRecord) error {
	_, err := r.audit.Append(ctx, models.ActionDataDeleted, rec.Details, &rec.Signature)
	return err
}

// DeletionService produces signed deletion attestations. External calls run
// before any database work and never fail the attestation.
type DeletionService struct {
	signer   *signing.Signer
	compose  ComposeHashSource
	ledger   LedgerSubmitter
	recorder DeletionRecorder
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewDeletionService(
	signer *signing.Signer,
	compose ComposeHashSource,
	ledger LedgerSubmitter,
	recorder DeletionRecorder,
	logger logging.Logger,
	mt *metrics.Metrics,
) *DeletionService {
	return &DeletionService{
		signer:   signer,
		compose:  compose,
		ledger:   ledger,
		recorder: recorder,
		logger:   logger.With("module", "deletion"),
		metrics:  mt,
		now:      time.Now,
	}
}

func (s *DeletionService) PostDeletionAttestation(ctx context.Context, receiptID, userIDHash string) (*models.DeletionResult, error) {
	if receiptID == "" || userIDHash == "" {
		return nil, fmt.Errorf("%w: receiptId and userIdHash are required", common.ErrInvalidInput)
	}

	deletedAt := s.now().UTC()
	ts := timex.ISOMillis(deletedAt)

	composeOut := s.compose.ComposeHash(ctx)
	s.metrics.ExternalCall("metadata", string(composeOut.Status))
	composeHash := composeOut.Or(metadata.Unavailable)

	att := models.DeletionAttestation{
		UserIDHash:        userIDHash,
		DeletionTimestamp: ts,
		ComposeHash:       composeHash,
		Signature:         s.signer.Sign(signing.DeletionMessage(userIDHash, ts, composeHash)),
	}

	ledgerOut := s.ledger.Submit(ctx, att)
	s.metrics.ExternalCall("ledger", string(ledgerOut.Status))
	s.metrics.Attestation(string(ledgerOut.Status))
	switch ledgerOut.Status {
	case besteffort.StatusOK:
		s.logger.Info(ctx, "deletion attestation submitted", "receipt_id", receiptID, "tx_hash", ledgerOut.Value)
	case besteffort.StatusSkipped:
		s.logger.Info(ctx, "ledger submission skipped", "receipt_id", receiptID)
	default:
		s.logger.Error(ctx, "ledger submission failed", "receipt_id", receiptID, "status", ledgerOut.Status, "error", ledgerOut.Err)
	}
	txHash := ledgerOut.Ptr()

	var txDetail any
	if txHash != nil {
		txDetail = *txHash
	}
	rec := DeletionRecord{
		ReceiptID:  receiptID,
		UserIDHash: userIDHash,
		DeletedAt:  deletedAt,
		TxHash:     txHash,
		Details: map[string]any{
			"receiptId":         receiptID,
			"userIdHash":        userIDHash,
			"deletionTimestamp": ts,
			"composeHash":       composeHash,
			"txHash":            txDetail,
		},
		Signature: att.Signature,
	}
	if err := s.recorder.Record(ctx, rec); err != nil {
		s.metrics.AuditFailure(models.ActionDataDeleted)
		s.logger.Error(ctx, "deletion not recorded", "receipt_id", receiptID, "error", err)
	}

	return &models.DeletionResult{Attestation: att, TxHash: txHash}, nil
}
