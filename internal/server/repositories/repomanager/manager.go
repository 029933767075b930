// Package repomanager vends repository implementations bound to a DBTX and
// owns the PostgreSQL primary/replica handles and schema migrations.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/enclavekeeper/internal/dbx"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/audit"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/receipts"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/reports"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/signups"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Audit(db dbx.DBTX) audit.Repository
	Signups(db dbx.DBTX) signups.Repository
	Receipts(db dbx.DBTX) receipts.Repository
	Reports(db dbx.DBTX) reports.Repository
}
