// Package config handles configuration for the enclave server, including
// defaults, a JSON overlay, the deployment environment variables and
// command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
)

// DevSigningKey is the insecure fallback used outside production when no
// signing key has been provided.
const DevSigningKey = "dev-signing-key-not-for-production"

// Config holds runtime settings for the enclave server.
//
// Fields:
//   - ListenAddr / MetricsAddr: bind addresses for the API and Prometheus.
//   - NodeEnv: "production" turns on the strict checks in Validate.
//   - DatabaseDSN / ReplicaDSN: PostgreSQL primary and optional read replica.
//     An empty DatabaseDSN runs the enclave without persistence.
//   - SigningKey: HMAC key for every signature the enclave emits.
//   - CVMID: identifier of this enclave instance, recorded on signups.
//   - MetadataURL / MetadataTimeout: local platform metadata (compose hash).
//   - UpstreamURL / UpstreamToken: the watch-history API and its bearer token.
//   - Ledger*: external ledger RPC endpoint, contract and submission credential.
//   - ReportBucket / S3* / ArchiveTimeout: optional archive of signed reports.
type Config struct {
	ListenAddr  string
	MetricsAddr string
	LogLevel    string
	NodeEnv     string

	DatabaseDSN string
	ReplicaDSN  string

	SigningKey     string
	ReportTokenTTL time.Duration

	CVMID string

	MetadataURL     string
	MetadataTimeout time.Duration

	UpstreamURL     string
	UpstreamToken   string
	UpstreamTimeout time.Duration

	LedgerRPCURL     string
	LedgerContract   string
	LedgerMethod     string
	LedgerPrivateKey string
	LedgerTimeout    time.Duration

	ReportBucket   string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
	ArchiveTimeout time.Duration

	BuildSHA    string
	BuildTime   string
	Environment string

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: the signing key stays empty here; Validate decides the fallback.
func (c *Config) LoadDefaults() {
	c.ListenAddr = ":8080"
	c.MetricsAddr = ""
	c.LogLevel = "info"
	c.NodeEnv = "development"

	c.ReportTokenTTL = 24 * time.Hour

	c.MetadataURL = "http://localhost:8090/compose-hash"
	c.MetadataTimeout = 2 * time.Second

	c.UpstreamURL = "http://localhost:3000"
	c.UpstreamToken = "demo-token-12345"
	c.UpstreamTimeout = 10 * time.Second

	c.LedgerRPCURL = "https://mainnet.base.org"
	c.LedgerContract = "0x2f83172A49584C017F2B256F0FB2Dca14126Ba9C"
	c.LedgerMethod = "tee_submitDeletionAttestation"
	c.LedgerTimeout = 10 * time.Second

	c.S3Region = "us-east-1"
	c.ArchiveTimeout = 10 * time.Second

	c.BuildSHA = "dev"
	c.Environment = "development"

	c.DrainDuration = 45 * time.Second
	c.GracefulShutdownDuration = 30 * time.Second
}

// IsProduction reports whether the strict production rules apply. Either
// NODE_ENV or ENVIRONMENT set to production is enough.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.NodeEnv, "production") || strings.EqualFold(c.Environment, "production")
}

// Persisted reports whether a primary database has been configured.
func (c *Config) Persisted() bool {
	return c.DatabaseDSN != ""
}

// LedgerEnabled reports whether deletion attestations are submitted to the
// external ledger.
func (c *Config) LedgerEnabled() bool {
	return c.LedgerPrivateKey != ""
}

// Validate checks the settings that must be fatal at startup. Outside
// production a missing signing key falls back to DevSigningKey.
func (c *Config) Validate() error {
	if c.SigningKey == "" {
		if c.IsProduction() {
			return fmt.Errorf("%w: signing key is required in production", common.ErrConfiguration)
		}
		c.SigningKey = DevSigningKey
	}
	if c.IsProduction() && c.UpstreamToken == "demo-token-12345" {
		return fmt.Errorf("%w: upstream token must be set in production", common.ErrConfiguration)
	}
	if c.MetadataTimeout <= 0 || c.LedgerTimeout <= 0 || c.UpstreamTimeout <= 0 || c.ArchiveTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", common.ErrConfiguration)
	}
	if c.ReportBucket != "" && c.S3Region == "" {
		return fmt.Errorf("%w: report bucket needs an S3 region", common.ErrConfiguration)
	}
	return nil
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, the environment, and finally command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
