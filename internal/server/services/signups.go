package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/logging"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/models"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	"github.com/dmitrijs2005/enclavekeeper/internal/timex"
	"go.uber.org/atomic"
)

const (
	SignupModeMemory    = "memory"
	SignupModePersisted = "persisted"
)

// SignupRegister counts signups and attests the count. The implementation is
// chosen once at startup and never changes for the life of the process.
type SignupRegister interface {
	// IncrementSignup records a signup and returns the count observed right
	// after it. An empty userID is recorded anonymously.
	IncrementSignup(ctx context.Context, userID string) (int64, error)
	GetSignedCount(ctx context.Context) (*models.SignedCount, error)
	// Reset clears the register. It fails with common.ErrResetForbidden in
	// production.
	Reset(ctx context.Context) error
	Mode() string
}

// MemorySignupRegister keeps the count in process memory; it restarts at
// zero with the process.
type MemorySignupRegister struct {
	count      atomic.Int64
	signer     *signing.Signer
	production bool
	logger     logging.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewMemorySignupRegister(signer *signing.Signer, production bool, logger logging.Logger, m *metrics.Metrics) *MemorySignupRegister {
	return &MemorySignupRegister{
		signer:     signer,
		production: production,
		logger:     logger.With("module", "signups", "mode", SignupModeMemory),
		metrics:    m,
		now:        time.Now,
	}
}

func (r *MemorySignupRegister) IncrementSignup(ctx context.Context, _ string) (int64, error) {
	n := r.count.Inc()
	r.metrics.Signup()
	r.logger.Info(ctx, "signup recorded", "count", n)
	return n, nil
}

func (r *MemorySignupRegister) GetSignedCount(context.Context) (*models.SignedCount, error) {
	return signCount(r.signer, r.count.Load(), r.now()), nil
}

func (r *MemorySignupRegister) Reset(ctx context.Context) error {
	if r.production {
		return common.ErrResetForbidden
	}
	r.count.Store(0)
	r.logger.Warn(ctx, "signup counter reset")
	return nil
}

func (r *MemorySignupRegister) Mode() string { return SignupModeMemory }

// PersistedSignupRegister stores one row per signup. Inserts go to the
// primary and counts to the read pool, so the returned count may lag or
// include concurrent signups.
type PersistedSignupRegister struct {
	db          *sql.DB
	read        *sql.DB
	repomanager repomanager.RepositoryManager
	audit       AuditLedger
	signer      *signing.Signer
	sourceID    string
	production  bool
	logger      logging.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewPersistedSignupRegister(
	primary, read *sql.DB,
	m repomanager.RepositoryManager,
	audit AuditLedger,
	signer *signing.Signer,
	sourceID string,
	production bool,
	logger logging.Logger,
	mt *metrics.Metrics,
) *PersistedSignupRegister {
	if read == nil {
		read = primary
	}
	return &PersistedSignupRegister{
		db:          primary,
		read:        read,
		repomanager: m,
		audit:       audit,
		signer:      signer,
		sourceID:    sourceID,
		production:  production,
		logger:      logger.With("module", "signups", "mode", SignupModePersisted),
		metrics:     mt,
		now:         time.Now,
	}
}

func (r *PersistedSignupRegister) IncrementSignup(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		userID = "anonymous_" + strconv.FormatInt(r.now().UnixMilli(), 10)
	}
	userIDHash := common.HashIdentifier(userID)

	if _, err := r.repomanager.Signups(r.db).Insert(ctx, userIDHash, r.sourceID); err != nil {
		return 0, fmt.Errorf("error recording signup: %w", err)
	}
	r.metrics.Signup()

	if _, err := r.audit.Append(ctx, models.ActionSignup, map[string]any{
		"userIdHash": userIDHash,
		"sourceCvm":  r.sourceID,
	}, nil); err != nil {
		r.metrics.AuditFailure(models.ActionSignup)
		r.logger.Warn(ctx, "signup audit entry dropped", "error", err)
	}

	n, err := r.repomanager.Signups(r.read).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("error counting signups: %w", err)
	}
	r.logger.Info(ctx, "signup recorded", "count", n)
	return n, nil
}

func (r *PersistedSignupRegister) GetSignedCount(ctx context.Context) (*models.SignedCount, error) {
	n, err := r.repomanager.Signups(r.read).Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("error counting signups: %w", err)
	}
	return signCount(r.signer, n, r.now()), nil
}

func (r *PersistedSignupRegister) Reset(ctx context.Context) error {
	if r.production {
		return common.ErrResetForbidden
	}
	if err := r.repomanager.Signups(r.db).Truncate(ctx); err != nil {
		return fmt.Errorf("error resetting signups: %w", err)
	}
	r.logger.Warn(ctx, "signups table truncated")
	return nil
}

func (r *PersistedSignupRegister) Mode() string { return SignupModePersisted }

// signCount attests a count. The signature is bare hex, unlike every other
// enclave signature.
func signCount(signer *signing.Signer, n int64, at time.Time) *models.SignedCount {
	ts := timex.ISOMillis(at)
	return &models.SignedCount{
		Count:     n,
		Signature: signer.SignHex(signing.CountMessage(n, ts)),
		Timestamp: ts,
	}
}
