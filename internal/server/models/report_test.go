package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportBody_CanonicalJSON_FieldOrder(t *testing.T) {
	b := ReportBody{
		ReportID:       "report_20250101",
		GeneratedAt:    "2025-01-01T12:00:00.000Z",
		TimeWindow:     TimeWindow{Start: "2024-12-31T12:00:00.000Z", End: "2025-01-01T12:00:00.000Z"},
		EnclaveVersion: "1.2.11",
		ComposeHash:    "unavailable",
		Summary:        ReportSummary{TotalUsersProcessed: 2, TotalSafeAPICalls: 1, TotalSignups: 3, AuditLogDigest: "sha256:00"},
	}

	got, err := b.CanonicalJSON()
	require.NoError(t, err)

	want := `{"reportId":"report_20250101","generatedAt":"2025-01-01T12:00:00.000Z",` +
		`"timeWindow":{"start":"2024-12-31T12:00:00.000Z","end":"2025-01-01T12:00:00.000Z"},` +
		`"enclaveVersion":"1.2.11","composeHash":"unavailable",` +
		`"summary":{"totalUsersProcessed":2,"totalSafeApiCalls":1,"totalSignups":3,"auditLogDigest":"sha256:00"}}`
	assert.Equal(t, want, string(got))
}

func TestSignedReport_FlattensBody(t *testing.T) {
	r := SignedReport{ReportBody: ReportBody{ReportID: "report_x"}, Signature: "hmac:ab"}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "report_x", m["reportId"])
	assert.Equal(t, "hmac:ab", m["signature"])
	assert.NotContains(t, m, "ReportBody")
}

func TestAuditEntry_DetailsJSON(t *testing.T) {
	e := &AuditEntry{}
	b, err := e.DetailsJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(b))

	e.Details = map[string]any{"receiptId": "receipt_1"}
	b, err = e.DetailsJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"receiptId":"receipt_1"}`, string(b))
}
