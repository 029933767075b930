// Package server wires configuration, storage, collaborators and services
// into one App and runs the HTTP API until the process is signalled.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/dmitrijs2005/enclavekeeper/internal/logging"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/archive"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/config"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/ledger"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/metadata"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/services"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/signing"
	"github.com/dmitrijs2005/enclavekeeper/internal/server/upstream"
	"github.com/google/uuid"
)

// Seams for tests.
var (
	openPools                = repomanager.Open
	newRepoManager           = repomanager.NewPostgresRepositoryManager
	logOutput      io.Writer = os.Stdout
)

const tokenIssuer = "enclavekeeper"

// App owns every process-scoped resource. It is built once by NewApp and
// released by Close; nothing in it is reconfigured at runtime.
type App struct {
	config     *config.Config
	logger     *logging.SlogLogger
	instanceID string

	pools       *repomanager.Pools
	repomanager repomanager.RepositoryManager
	ledger      *ledger.RPCSubmitter

	signups  services.SignupRegister
	receipts services.ReceiptStore
	deletion services.DeletionAttestor
	reports  services.ReportGenerator
	audit    services.AuditLedger

	server *httpapi.Server
}

// NewApp validates c and builds the App. Storage is selected here, once: if
// the database is not configured, unreachable, or cannot be migrated, the
// enclave runs in memory for the life of the process.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	instanceID := c.CVMID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	logger := logging.NewJSONLogger(logOutput, c.LogLevel)
	log := logger.With("instance", instanceID)

	if c.SigningKey == config.DevSigningKey {
		log.Warn(ctx, "using the development signing key")
	}
	signer, err := signing.NewSigner(c.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
	}
	tokens, err := signing.NewTokenIssuer(c.SigningKey, tokenIssuer, c.ReportTokenTTL)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	app := &App{config: c, logger: logger, instanceID: instanceID}

	compose := metadata.NewClient(c.MetadataURL, c.MetadataTimeout)

	var submitter services.LedgerSubmitter = ledger.NopSubmitter{}
	if c.LedgerEnabled() {
		rpcSubmitter, err := ledger.NewRPCSubmitter(ctx, c.LedgerRPCURL, c.LedgerContract, c.LedgerMethod, c.LedgerPrivateKey, c.LedgerTimeout)
		if err != nil {
			return nil, err
		}
		app.ledger = rpcSubmitter
		submitter = rpcSubmitter
		log.Info(ctx, "ledger submission enabled", "from", rpcSubmitter.From().Hex())
	} else {
		log.Info(ctx, "no ledger credential, attestations stay local")
	}

	var archiver services.ReportArchiver = archive.NopArchiver{}
	if c.ReportBucket != "" {
		client, err := archive.NewS3Client(ctx, archive.Options{
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("%w: %v", common.ErrConfiguration, err)
		}
		archiver = archive.NewS3Archiver(client, c.ReportBucket, c.ArchiveTimeout)
	}

	app.selectStorage(ctx, log)

	if app.pools != nil {
		primary, read := app.pools.Primary, app.pools.Read()
		app.audit = services.NewPostgresAuditLedger(primary, read, app.repomanager)
		app.signups = services.NewPersistedSignupRegister(primary, read, app.repomanager, app.audit, signer, instanceID, c.IsProduction(), log, m)
		app.receipts = services.NewReceiptService(primary, app.repomanager, signer, log, m)
		app.deletion = services.NewDeletionService(signer, compose, submitter,
			services.NewPostgresDeletionRecorder(primary, app.repomanager, log, m), log, m)
		app.reports = services.NewReportService(primary, read, app.repomanager, app.audit, signer, compose, archiver, log, m)
	} else {
		app.audit = services.NopAuditLedger{}
		app.signups = services.NewMemorySignupRegister(signer, c.IsProduction(), log, m)
		app.receipts = services.UnavailableReceiptService{}
		app.deletion = services.NewDeletionService(signer, compose, submitter,
			services.NewLedgerDeletionRecorder(app.audit), log, m)
		app.reports = services.UnavailableReportService{}
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Signups:  app.signups,
		Receipts: app.receipts,
		Deletion: app.deletion,
		Reports:  app.reports,
		Audit:    app.audit,
		Upstream: upstream.NewClient(c.UpstreamURL, c.UpstreamToken, c.UpstreamTimeout),
		Compose:  compose,
		Tokens:   tokens,
		Build:    httpapi.BuildInfo{GitSHA: c.BuildSHA, BuildTime: c.BuildTime, Environment: c.Environment},
	}, log, m)

	app.server = httpapi.New(&httpapi.ServerConfig{
		ListenAddr:               c.ListenAddr,
		MetricsAddr:              c.MetricsAddr,
		Log:                      logger.Slog().With("instance", instanceID),
		DrainDuration:            c.DrainDuration,
		GracefulShutdownDuration: c.GracefulShutdownDuration,
		ReadTimeout:              30 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, handler, m)

	log.Info(ctx, "app initialised", "signup_mode", app.signups.Mode(), "listen", c.ListenAddr)
	return app, nil
}

// selectStorage opens the database and runs migrations. Every failure is
// logged and leaves the App without pools, i.e. in memory mode.
func (app *App) selectStorage(ctx context.Context, log logging.Logger) {
	if !app.config.Persisted() {
		log.Info(ctx, "no database configured, running in memory")
		return
	}

	pools, err := openPools(ctx, app.config.DatabaseDSN, app.config.ReplicaDSN)
	if pools == nil {
		log.Error(ctx, "database unavailable, running in memory", "error", err)
		return
	}
	if err != nil {
		log.Warn(ctx, "read replica unavailable, reading from primary", "error", err)
	}

	m := newRepoManager()
	if err := m.RunMigrations(ctx, pools.Primary); err != nil {
		log.Error(ctx, "migrations failed, running in memory", "error", err)
		_ = pools.Close()
		return
	}

	app.pools = pools
	app.repomanager = m
	log.Info(ctx, "database ready", "replica", pools.Replica != nil)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or the process receives a termination
// signal, then drains and shuts the servers down.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	app.server.RunInBackground()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		drainCtx, cancel := context.WithTimeout(context.Background(), app.config.DrainDuration)
		defer cancel()
		app.server.Drain(drainCtx)
		app.server.Shutdown()
	}()
	wg.Wait()

	app.logger.Info(context.Background(), "App stopped")
}

// Close releases the database pools and the ledger connection.
func (app *App) Close() {
	if app.ledger != nil {
		app.ledger.Close()
	}
	if app.pools != nil {
		if err := app.pools.Close(); err != nil {
			app.logger.Error(context.Background(), "closing database", "error", err)
		}
	}
}
