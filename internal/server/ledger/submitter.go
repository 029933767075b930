// Package ledger posts deletion attestations to an external ledger. The
// submission is best-effort: callers receive a besteffort.Outcome holding the
// transaction reference, never an error.
package ledger

import (
	"context"

	"github.com/dmitrijs2005/enclavekeeper/internal/besteffort"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
)

// NopSubmitter is used when no submission credential is configured.
type NopSubmitter struct{}

func (NopSubmitter) Submit(context.Context, models.DeletionAttestation) besteffort.Outcome[string] {
	return besteffort.Skipped[string]("no ledger credential configured")
}
