// Package models contains the records the enclave persists and returns.
package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded in the ledger.
const (
	ActionDataReceived    = "data_received"
	ActionDataDeleted     = "data_deleted"
	ActionSafeAPICall     = "safe_api_call"
	ActionReportGenerated = "report_generated"
	ActionSignup          = "signup"
)

// AuditEntry is one immutable row of the audit ledger.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	Signature *string        `json:"signature"`
	CreatedAt time.Time      `json:"created_at"`
}

// DetailsJSON encodes Details for storage. A nil map is stored as {}.
func (e *AuditEntry) DetailsJSON() ([]byte, error) {
	if e.Details == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.Details)
}
