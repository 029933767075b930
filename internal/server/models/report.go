package models

import (
	"encoding/json"
	"time"
)

type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type ReportSummary struct {
	TotalUsersProcessed int64  `json:"totalUsersProcessed"`
	TotalSafeAPICalls   int64  `json:"totalSafeApiCalls"`
	TotalSignups        int64  `json:"totalSignups"`
	AuditLogDigest      string `json:"auditLogDigest"`
}

// ReportBody is the signed part of a report. Field order is the canonical
// serialization order.
type ReportBody struct {
	ReportID       string        `json:"reportId"`
	GeneratedAt    string        `json:"generatedAt"`
	TimeWindow     TimeWindow    `json:"timeWindow"`
	EnclaveVersion string        `json:"enclaveVersion"`
	ComposeHash    string        `json:"composeHash"`
	Summary        ReportSummary `json:"summary"`
}

// CanonicalJSON is the exact byte string covered by the report signature.
func (b ReportBody) CanonicalJSON() ([]byte, error) {
	return json.Marshal(b)
}

// SignedReport is a ReportBody plus its signature, serialized flat.
type SignedReport struct {
	ReportBody
	Signature string `json:"signature"`
}

// Report is a persisted report row.
type Report struct {
	ReportID    string
	WindowStart time.Time
	WindowEnd   time.Time
	ReportJSON  []byte
	Signature   string
	CreatedAt   time.Time
}

// ReportListItem is the summary view of a stored report.
type ReportListItem struct {
	ReportID    string `json:"reportId"`
	GeneratedAt string `json:"generatedAt"`
	Signature   string `json:"signature"`
}
