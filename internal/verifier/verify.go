// Package verifier checks enclave signatures offline. Anyone holding the
// enclave's signing key can confirm that a report, receipt, deletion
// attestation or signup count was produced by the enclave and not altered.
package verifier

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
)

var ErrBadSignature = errors.New("signature does not match")

// VerifyReport recomputes the HMAC over the report without its signature.
func VerifyReport(s *signing.Signer, data []byte) (*models.SignedReport, error) {
	var r models.SignedReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	canonical, err := r.ReportBody.CanonicalJSON()
	if err != nil {
		return nil, err
	}
	if !s.Verify(string(canonical), r.Signature) {
		return &r, fmt.Errorf("report %s: %w", r.ReportID, ErrBadSignature)
	}
	return &r, nil
}

// VerifyReportToken checks that token was issued by the enclave for r.
func VerifyReportToken(issuer *signing.TokenIssuer, token string, r *models.SignedReport) error {
	claims, err := issuer.Parse(token)
	if err != nil {
		return err
	}
	if claims.ReportID != r.ReportID || claims.Signature != r.Signature || claims.AuditLogDigest != r.Summary.AuditLogDigest {
		return fmt.Errorf("token does not describe report %s", r.ReportID)
	}
	return nil
}

// VerifyReceipt checks the audit entry returned by a data submission.
func VerifyReceipt(s *signing.Signer, data []byte) (*models.SubmitDataResult, error) {
	var res models.SubmitDataResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	ae := res.AuditEntry
	if !s.Verify(signing.DataReceivedMessage(ae.UserIDHash, ae.SafeDerivative, ae.Timestamp), ae.Signature) {
		return &res, fmt.Errorf("receipt %s: %w", res.ReceiptID, ErrBadSignature)
	}
	if res.SafeDerivative != ae.SafeDerivative {
		return &res, fmt.Errorf("receipt %s: derivative differs from the signed one", res.ReceiptID)
	}
	return &res, nil
}

// VerifyDeletion checks a deletion attestation, bare or wrapped in a
// deletion result.
func VerifyDeletion(s *signing.Signer, data []byte) (*models.DeletionAttestation, error) {
	var wrapped models.DeletionResult
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("decode attestation: %w", err)
	}
	att := wrapped.Attestation
	if att.Signature == "" {
		if err := json.Unmarshal(data, &att); err != nil {
			return nil, fmt.Errorf("decode attestation: %w", err)
		}
	}
	if !s.Verify(signing.DeletionMessage(att.UserIDHash, att.DeletionTimestamp, att.ComposeHash), att.Signature) {
		return &att, fmt.Errorf("deletion of %s: %w", att.UserIDHash, ErrBadSignature)
	}
	return &att, nil
}

// VerifyCount checks a signed signup count.
func VerifyCount(s *signing.Signer, c models.SignedCount) error {
	if !s.Verify(signing.CountMessage(c.Count, c.Timestamp), c.Signature) {
		return fmt.Errorf("count %d at %s: %w", c.Count, c.Timestamp, ErrBadSignature)
	}
	return nil
}
