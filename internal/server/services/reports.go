package services

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
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

// EnclaveVersion is reported in /version and in every signed report.
const EnclaveVersion = "1.2.11"

// ReportWindow is the span of audit history a report covers.
const ReportWindow = 24 * time.Hour

// ReportArchiver keeps an external copy of a signed report.
type ReportArchiver interface {
	Archive(ctx context.Context, r *models.SignedReport) besteffort.Outcome[string]
}

// ReportGenerator produces and lists signed retrospective reports.
type ReportGenerator interface {
	GenerateReport(ctx context.Context) (*models.SignedReport, error)
	ListReports(ctx context.Context) ([]models.ReportListItem, error)
	GetReport(ctx context.Context, reportID string) (*models.SignedReport, error)
}

// ReportService builds reports from the read pool, reading the window through
// the AuditLedger, and stores them on the primary. Reports are keyed by UTC day: a second report on the same day
// replaces the first.
type ReportService struct {
	db          *sql.DB
	read        *sql.DB
	repomanager repomanager.RepositoryManager
	audit       AuditLedger
	signer      *signing.Signer
	compose     ComposeHashSource
	archiver    ReportArchiver
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewReportService(
	primary, read *sql.DB,
	m repomanager.RepositoryManager,
	audit AuditLedger,
	signer *signing.Signer,
	compose ComposeHashSource,
	archiver ReportArchiver,
	logger logging.Logger,
	mt *metrics.Metrics,
) *ReportService {
	if read == nil {
		read = primary
	}
	return &ReportService{
		db:          primary,
		read:        read,
		repomanager: m,
		audit:       audit,
		signer:      signer,
		compose:     compose,
		archiver:    archiver,
		logger:      logger.With("module", "reports"),
		metrics:     mt,
		now:         time.Now,
	}
}

// ReportID names the report generated at t.
func ReportID(t time.Time) string {
	return "report_" + t.UTC().Format("20060102")
}

// AuditDigest is the "sha256:<hex>" digest of the JSON array of entries.
func AuditDigest(entries []models.AuditEntry) (string, error) {
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func (s *ReportService) GenerateReport(ctx context.Context) (*models.SignedReport, error) {
	end := s.now().UTC()
	start := end.Add(-ReportWindow)

	totalSignups, err := s.repomanager.Signups(s.read).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("error counting signups: %w", err)
	}
	totalReceipts, err := s.repomanager.Receipts(s.read).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("error counting receipts: %w", err)
	}
	entries, err := s.audit.Query(ctx, &start, &end)
	if err != nil {
		return nil, err
	}

	var safeCalls int64
	for _, e := range entries {
		if e.Action == models.ActionSafeAPICall {
			safeCalls++
		}
	}
	digest, err := AuditDigest(entries)
	if err != nil {
		return nil, fmt.Errorf("error computing audit digest: %w", err)
	}

	composeOut := s.compose.ComposeHash(ctx)
	s.metrics.ExternalCall("metadata", string(composeOut.Status))

	body := models.ReportBody{
		ReportID:       ReportID(end),
		GeneratedAt:    timex.ISOMillis(end),
		TimeWindow:     models.TimeWindow{Start: timex.ISOMillis(start), End: timex.ISOMillis(end)},
		EnclaveVersion: EnclaveVersion,
		ComposeHash:    composeOut.Or(metadata.Unavailable),
		Summary: models.ReportSummary{
			TotalUsersProcessed: totalReceipts,
			TotalSafeAPICalls:   safeCalls,
			TotalSignups:        totalSignups,
			AuditLogDigest:      digest,
		},
	}
	canonical, err := body.CanonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("error encoding report: %w", err)
	}
	signed := &models.SignedReport{ReportBody: body, Signature: s.signer.Sign(string(canonical))}

	reportJSON, err := json.Marshal(signed)
	if err != nil {
		return nil, fmt.Errorf("error encoding report: %w", err)
	}

	var replaced bool
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		replaced, err = s.repomanager.Reports(tx).Upsert(ctx, &models.Report{
			ReportID:    body.ReportID,
			WindowStart: start,
			WindowEnd:   end,
			ReportJSON:  reportJSON,
			Signature:   signed.Signature,
			CreatedAt:   end,
		})
		if err != nil {
			return fmt.Errorf("error storing report: %w", err)
		}

		auditErr := dbx.WithSavepoint(ctx, tx, "audit", func(ctx context.Context, tx dbx.DBTX) error {
			_, err := s.repomanager.Audit(tx).Append(ctx, models.ActionReportGenerated,
				map[string]any{"reportId": body.ReportID}, &signed.Signature)
			return err
		})
		if auditErr != nil {
			s.metrics.AuditFailure(models.ActionReportGenerated)
			s.logger.Warn(ctx, "report_generated audit entry dropped", "report_id", body.ReportID, "error", auditErr)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	s.metrics.Report(replaced)

	archived := s.archiver.Archive(ctx, signed)
	s.metrics.ExternalCall("archive", string(archived.Status))
	if archived.Status == besteffort.StatusFailed || archived.Status == besteffort.StatusUnavailable {
		s.logger.Warn(ctx, "report not archived", "report_id", body.ReportID, "error", archived.Err)
	}

	s.logger.Info(ctx, "report generated",
		"report_id", body.ReportID,
		"replaced", replaced,
		"users", totalReceipts,
		"signups", totalSignups,
	)
	return signed, nil
}

func (s *ReportService) ListReports(ctx context.Context) ([]models.ReportListItem, error) {
	rows, err := s.repomanager.Reports(s.read).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing reports: %w", err)
	}
	items := make([]models.ReportListItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, models.ReportListItem{
			ReportID:    r.ReportID,
			GeneratedAt: timex.ISOMillis(r.CreatedAt),
			Signature:   r.Signature,
		})
	}
	return items, nil
}

func (s *ReportService) GetReport(ctx context.Context, reportID string) (*models.SignedReport, error) {
	r, err := s.repomanager.Reports(s.read).Get(ctx, reportID)
	if err != nil {
		return nil, err
	}
	var signed models.SignedReport
	if err := json.Unmarshal(r.ReportJSON, &signed); err != nil {
		return nil, fmt.Errorf("error decoding report %s: %w", reportID, err)
	}
	return &signed, nil
}

// UnavailableReportService is used when the enclave runs without a database.
type UnavailableReportService struct{}

func (UnavailableReportService) GenerateReport(context.Context) (*models.SignedReport, error) {
	return nil, common.ErrStorageUnavailable
}

func (UnavailableReportService) ListReports(context.Context) ([]models.ReportListItem, error) {
	return nil, common.ErrStorageUnavailable
}

func (UnavailableReportService) GetReport(context.Context, string) (*models.SignedReport, error) {
	return nil, common.ErrStorageUnavailable
}
