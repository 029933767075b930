package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
)

// Pools holds the primary database and an optional read replica. Writes and
// reads that must observe them go to Primary; other reads go to Read(),
// which may lag behind the primary.
type Pools struct {
	Primary *sql.DB
	Replica *sql.DB
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open connects to the primary and, if replicaDSN is set, to the replica.
// A replica that cannot be reached is dropped and reads fall back to the
// primary; an unreachable primary is reported as common.ErrStorageUnavailable.
func Open(ctx context.Context, primaryDSN, replicaDSN string) (*Pools, error) {
	primary, err := sqlOpen("pgx", primaryDSN)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
	}
	if err := primary.PingContext(ctx); err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("%w: primary: %v", common.ErrStorageUnavailable, err)
	}

	p := &Pools{Primary: primary}
	if replicaDSN == "" {
		return p, nil
	}

	replica, err := sqlOpen("pgx", replicaDSN)
	if err != nil {
		return p, fmt.Errorf("replica ignored: %w", err)
	}
	if err := replica.PingContext(ctx); err != nil {
		_ = replica.Close()
		return p, fmt.Errorf("replica ignored: %w", err)
	}
	p.Replica = replica
	return p, nil
}

// Read returns the replica when one is configured, else the primary.
func (p *Pools) Read() *sql.DB {
	if p.Replica != nil {
		return p.Replica
	}
	return p.Primary
}

func (p *Pools) Close() error {
	var errs []error
	if p.Replica != nil {
		errs = append(errs, p.Replica.Close())
	}
	if p.Primary != nil {
		errs = append(errs, p.Primary.Close())
	}
	return errors.Join(errs...)
}
