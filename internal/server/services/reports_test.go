package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/besteffort"
	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/archive"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedAudit(rm *fakeRepoManager) {
	ctx := context.Background()
	_, _ = rm.audit.Append(ctx, models.ActionSafeAPICall, map[string]any{"endpoint": "/api/watch_history"}, nil)
	_, _ = rm.audit.Append(ctx, models.ActionSignup, map[string]any{"userIdHash": "sha256:a"}, nil)
	_, _ = rm.audit.Append(ctx, models.ActionSafeAPICall, map[string]any{"endpoint": "/api/watch_history"}, nil)
}

func newReportService(t *testing.T, rm *fakeRepoManager, arch ReportArchiver) (*ReportService, func(time.Time)) {
	t.Helper()
	db, mock := newSQLMockDB(t)
	s := NewReportService(db, nil, rm, NewPostgresAuditLedger(db, nil, rm), newTestSigner(t), staticCompose{out: besteffort.OK("sha256:compose")}, arch, nopLogger, nil)
	expectTx := func(at time.Time) {
		s.now = fixedClock(at)
		mock.ExpectBegin()
		expectSavepoint(mock, "audit", false)
		mock.ExpectCommit()
	}
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })
	return s, expectTx
}

func TestGenerateReport(t *testing.T) {
	rm := newFakeRepoManager()
	seedAudit(rm)
	rm.signups.hashes = []string{"a", "b", "c"}
	rm.receipts.count = 2
	arch := &fakeArchiver{out: besteffort.OK("reports/report_20250304.json")}
	s, expectTx := newReportService(t, rm, arch)

	now := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	expectTx(now)

	windowEntries, err := rm.audit.Range(context.Background(), nil, nil)
	require.NoError(t, err)
	wantDigest, err := AuditDigest(windowEntries)
	require.NoError(t, err)

	r, err := s.GenerateReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "report_20250304", r.ReportID)
	assert.Equal(t, "2025-03-04T10:00:00.000Z", r.GeneratedAt)
	assert.Equal(t, models.TimeWindow{Start: "2025-03-03T10:00:00.000Z", End: "2025-03-04T10:00:00.000Z"}, r.TimeWindow)
	assert.Equal(t, EnclaveVersion, r.EnclaveVersion)
	assert.Equal(t, "sha256:compose", r.ComposeHash)
	assert.Equal(t, models.ReportSummary{
		TotalUsersProcessed: 2,
		TotalSafeAPICalls:   2,
		TotalSignups:        3,
		AuditLogDigest:      wantDigest,
	}, r.Summary)

	require.NotNil(t, rm.audit.gotSince)
	assert.True(t, now.Add(-24*time.Hour).Equal(*rm.audit.gotSince))
	require.NotNil(t, rm.audit.gotUntil, "window must be closed at generation time")
	assert.True(t, now.Equal(*rm.audit.gotUntil))

	// the report_generated entry follows the three seeded entries
	require.Len(t, rm.audit.entries, 4)
	last := rm.audit.entries[3]
	assert.Equal(t, models.ActionReportGenerated, last.Action)
	assert.Equal(t, map[string]any{"reportId": "report_20250304"}, last.Details)
	require.NotNil(t, last.Signature)
	assert.Equal(t, r.Signature, *last.Signature)

	require.Len(t, arch.got, 1)
	assert.Equal(t, r, arch.got[0])
}

func TestGenerateReport_SignatureRoundTripAndTamper(t *testing.T) {
	rm := newFakeRepoManager()
	s, expectTx := newReportService(t, rm, &fakeArchiver{out: besteffort.Skipped[string]("no bucket")})
	expectTx(time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC))

	r, err := s.GenerateReport(context.Background())
	require.NoError(t, err)

	// what a verifier does: drop the signature, re-serialize, recompute
	stored := rm.reports.stored[r.ReportID]
	var decoded models.SignedReport
	require.NoError(t, json.Unmarshal(stored.ReportJSON, &decoded))
	canonical, err := decoded.ReportBody.CanonicalJSON()
	require.NoError(t, err)
	assert.True(t, s.signer.Verify(string(canonical), decoded.Signature))

	tampered := decoded.ReportBody
	tampered.Summary.TotalSignups++
	canonical, err = tampered.CanonicalJSON()
	require.NoError(t, err)
	assert.False(t, s.signer.Verify(string(canonical), decoded.Signature))
}

func TestGenerateReport_SameDayReplaces(t *testing.T) {
	rm := newFakeRepoManager()
	s, expectTx := newReportService(t, rm, archive.NopArchiver{})

	expectTx(time.Date(2025, 3, 4, 1, 0, 0, 0, time.UTC))
	first, err := s.GenerateReport(context.Background())
	require.NoError(t, err)

	rm.signups.hashes = append(rm.signups.hashes, "new")
	expectTx(time.Date(2025, 3, 4, 23, 59, 0, 0, time.UTC))
	second, err := s.GenerateReport(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ReportID, second.ReportID)
	assert.NotEqual(t, first.Signature, second.Signature)
	assert.Equal(t, []bool{false, true}, rm.reports.replaced)
	require.Len(t, rm.reports.stored, 1)
	assert.Equal(t, second.Signature, rm.reports.stored[second.ReportID].Signature)

	list, err := s.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.Signature, list[0].Signature)
}

func TestGenerateReport_ReadErrorAbortsBeforeTx(t *testing.T) {
	rm := newFakeRepoManager()
	rm.audit.sinceErr = errors.New("replica down")
	s, _ := newReportService(t, rm, archive.NopArchiver{})

	_, err := s.GenerateReport(context.Background())
	assert.ErrorContains(t, err, "replica down")
	assert.Empty(t, rm.reports.stored)
}

func TestListAndGetReports(t *testing.T) {
	rm := newFakeRepoManager()
	s, expectTx := newReportService(t, rm, archive.NopArchiver{})

	expectTx(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC))
	older, err := s.GenerateReport(context.Background())
	require.NoError(t, err)
	expectTx(time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC))
	newer, err := s.GenerateReport(context.Background())
	require.NoError(t, err)

	list, err := s.ListReports(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ReportID, list[0].ReportID, "newest first")
	assert.Equal(t, "2025-03-04T09:00:00.000Z", list[0].GeneratedAt)
	assert.Equal(t, older.ReportID, list[1].ReportID)

	got, err := s.GetReport(context.Background(), older.ReportID)
	require.NoError(t, err)
	assert.Equal(t, older, got)

	_, err = s.GetReport(context.Background(), "report_19700101")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAuditDigest_EmptyWindow(t *testing.T) {
	a, err := AuditDigest(nil)
	require.NoError(t, err)
	b, err := AuditDigest([]models.AuditEntry{})
	require.NoError(t, err)
	// sha256("[]")
	assert.Equal(t, "sha256:4f53cda18c2baa0c0354bb5f9a3ecbe5ed12ab4d8e11ba873c2f11161202b945", a)
	assert.Equal(t, a, b)
}

func TestReportID_UsesUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	assert.Equal(t, "report_20250303", ReportID(time.Date(2025, 3, 4, 1, 0, 0, 0, loc)))
}

func TestUnavailableReportService(t *testing.T) {
	var s ReportGenerator = UnavailableReportService{}
	_, err := s.GenerateReport(context.Background())
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	_, err = s.ListReports(context.Background())
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
	_, err = s.GetReport(context.Background(), "x")
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
}
