package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/enclavekeeper/internal/besteffort"
	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/dbx"
	"github.com/dmitrijs2005/enclavekeeper/internal/logging"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/audit"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/receipts"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/reports"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/signups"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func newTestSigner(t *testing.T) *signing.Signer {
	t.Helper()
	s, err := signing.NewSigner("test-signing-key")
	require.NoError(t, err)
	return s
}

var nopLogger = logging.NewNopLogger()

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// --- fake repositories ---

type fakeAuditRepo struct {
	mu        sync.Mutex
	entries   []models.AuditEntry
	appendErr error
	sinceErr  error
	gotSince  *time.Time
	gotUntil  *time.Time
}

func (f *fakeAuditRepo) Append(_ context.Context, action string, details map[string]any, sig *string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	id := int64(len(f.entries) + 1)
	f.entries = append(f.entries, models.AuditEntry{ID: id, Action: action, Details: details, Signature: sig})
	return id, nil
}

func (f *fakeAuditRepo) Range(_ context.Context, since, until *time.Time) ([]models.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotSince, f.gotUntil = since, until
	if f.sinceErr != nil {
		return nil, f.sinceErr
	}
	out := make([]models.AuditEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

type fakeSignupsRepo struct {
	mu        sync.Mutex
	hashes    []string
	sources   []string
	insertErr error
	countErr  error
	truncated bool
}

func (f *fakeSignupsRepo) Insert(_ context.Context, userIDHash, sourceID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.hashes = append(f.hashes, userIDHash)
	f.sources = append(f.sources, sourceID)
	return int64(len(f.hashes)), nil
}

func (f *fakeSignupsRepo) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.hashes)), nil
}

func (f *fakeSignupsRepo) Truncate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes, f.sources, f.truncated = nil, nil, true
	return nil
}

type markCall struct {
	receiptID  string
	userIDHash string
	deletedAt  time.Time
	txHash     *string
}

type fakeReceiptsRepo struct {
	created   []*models.Receipt
	createErr error
	marks     []markCall
	markErr   error
	count     int64
}

func (f *fakeReceiptsRepo) Create(_ context.Context, r *models.Receipt) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, r)
	return nil
}

func (f *fakeReceiptsRepo) Get(_ context.Context, id string) (*models.Receipt, error) {
	for _, r := range f.created {
		if r.ReceiptID == id {
			return r, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeReceiptsRepo) MarkDeleted(_ context.Context, id, userIDHash string, at time.Time, txHash *string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marks = append(f.marks, markCall{receiptID: id, userIDHash: userIDHash, deletedAt: at, txHash: txHash})
	return nil
}

func (f *fakeReceiptsRepo) Count(context.Context) (int64, error) {
	return f.count + int64(len(f.created)), nil
}

type fakeReportsRepo struct {
	stored    map[string]*models.Report
	order     []string
	replaced  []bool
	upsertErr error
}

func (f *fakeReportsRepo) Upsert(_ context.Context, r *models.Report) (bool, error) {
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	if f.stored == nil {
		f.stored = map[string]*models.Report{}
	}
	_, exists := f.stored[r.ReportID]
	f.stored[r.ReportID] = r
	if !exists {
		f.order = append(f.order, r.ReportID)
	}
	f.replaced = append(f.replaced, exists)
	return exists, nil
}

func (f *fakeReportsRepo) Get(_ context.Context, id string) (*models.Report, error) {
	r, ok := f.stored[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return r, nil
}

func (f *fakeReportsRepo) List(context.Context) ([]models.Report, error) {
	out := make([]models.Report, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		r := *f.stored[f.order[i]]
		r.ReportJSON = nil
		out = append(out, r)
	}
	return out, nil
}

type fakeRepoManager struct {
	audit    *fakeAuditRepo
	signups  *fakeSignupsRepo
	receipts *fakeReceiptsRepo
	reports  *fakeReportsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		audit:    &fakeAuditRepo{},
		signups:  &fakeSignupsRepo{},
		receipts: &fakeReceiptsRepo{},
		reports:  &fakeReportsRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Audit(dbx.DBTX) audit.Repository              { return m.audit }
func (m *fakeRepoManager) Signups(dbx.DBTX) signups.Repository          { return m.signups }
func (m *fakeRepoManager) Receipts(dbx.DBTX) receipts.Repository        { return m.receipts }
func (m *fakeRepoManager) Reports(dbx.DBTX) reports.Repository          { return m.reports }

// --- fake collaborators ---

type staticCompose struct{ out besteffort.Outcome[string] }

func (s staticCompose) ComposeHash(context.Context) besteffort.Outcome[string] { return s.out }

type fakeLedger struct {
	out besteffort.Outcome[string]
	got []models.DeletionAttestation
}

func (f *fakeLedger) Submit(_ context.Context, att models.DeletionAttestation) besteffort.Outcome[string] {
	f.got = append(f.got, att)
	return f.out
}

type fakeArchiver struct {
	out besteffort.Outcome[string]
	got []*models.SignedReport
}

func (f *fakeArchiver) Archive(_ context.Context, r *models.SignedReport) besteffort.Outcome[string] {
	f.got = append(f.got, r)
	return f.out
}
