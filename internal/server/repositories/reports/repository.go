// Package reports declares the signed report repository.
package reports

import (
	"context"

	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
)

type Repository interface {
	// Upsert stores the report keyed by ReportID. A report with the same id
	// is replaced; replaced reports whether that happened.
	Upsert(ctx context.Context, r *models.Report) (replaced bool, err error)

	// Get returns a stored report or common.ErrNotFound.
	Get(ctx context.Context, reportID string) (*models.Report, error)

	// List returns every report without its JSON body, newest first.
	List(ctx context.Context) ([]models.Report, error)
}
