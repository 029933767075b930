package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Signup()
	m.Signup()
	m.Receipt()
	m.Attestation("skipped")
	m.Report(false)
	m.Report(true)
	m.AuditFailure("signup")
	m.ExternalCall("metadata", "unavailable")
	m.SafeAPICall()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.signups))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.receipts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attestations.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reports.WithLabelValues("new")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reports.WithLabelValues("replaced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditFailures.WithLabelValues("signup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.externalCalls.WithLabelValues("metadata", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.safeAPICalls))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Signup()
	m.Receipt()
	m.Attestation("ok")
	m.Report(true)
	m.AuditFailure("x")
	m.ExternalCall("a", "b")
	m.SafeAPICall()
}

func TestHandler_Exposes(t *testing.T) {
	m := New()
	m.Signup()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "enclave_signups_total 1"))
}
