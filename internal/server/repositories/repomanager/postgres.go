package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/enclavekeeper/internal/dbx"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/audit"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/receipts"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/reports"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/signups"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

func (m *PostgresRepositoryManager) Audit(db dbx.DBTX) audit.Repository {
	return audit.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Signups(db dbx.DBTX) signups.Repository {
	return signups.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Receipts(db dbx.DBTX) receipts.Repository {
	return receipts.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Reports(db dbx.DBTX) reports.Repository {
	return reports.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations. Migrations are idempotent
// and run once at startup against the primary.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
