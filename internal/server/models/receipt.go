package models

import "time"

// Receipt proves that a user-data submission happened and records the only
// artifact kept from it, the safe derivative.
//
// RawDiscardedAt is written at creation: the raw payload never outlives the
// request. DeletedAt is written when a deletion attestation is posted.
type Receipt struct {
	ReceiptID      string
	UserIDHash     string
	SafeDerivative string
	Signature      string
	CreatedAt      time.Time
	RawDiscardedAt time.Time
	DeletedAt      *time.Time
	DeletionTxHash *string
}

// ReceiptAuditEntry is the signed audit view returned to the submitter.
type ReceiptAuditEntry struct {
	Action         string `json:"action"`
	UserIDHash     string `json:"userIdHash"`
	SafeDerivative string `json:"safeDerivative"`
	Timestamp      string `json:"timestamp"`
	Signature      string `json:"signature"`
}

// SubmitDataResult is returned by a data submission.
type SubmitDataResult struct {
	ReceiptID      string            `json:"receiptId"`
	SafeDerivative string            `json:"safeDerivative"`
	AuditEntry     ReceiptAuditEntry `json:"auditEntry"`
}

// DeletionAttestation is the signed claim that a user's data was deleted.
type DeletionAttestation struct {
	UserIDHash        string `json:"userIdHash"`
	DeletionTimestamp string `json:"deletionTimestamp"`
	ComposeHash       string `json:"composeHash"`
	Signature         string `json:"signature"`
}

// DeletionResult pairs the attestation with the external ledger reference,
// which stays nil when submission was skipped or failed.
type DeletionResult struct {
	Attestation DeletionAttestation `json:"attestation"`
	TxHash      *string             `json:"txHash"`
}
