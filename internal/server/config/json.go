package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/enclavekeeper/internal/flagx"
	"github.com/dmitrijs2005/enclavekeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "2s" and integer nanoseconds are accepted. Only
// fields present in the file override the current values.
type JsonConfig struct {
	ListenAddr       string          `json:"listen_addr"`
	MetricsAddr      string          `json:"metrics_addr"`
	LogLevel         string          `json:"log_level"`
	NodeEnv          string          `json:"node_env"`
	DatabaseDSN      string          `json:"database_dsn"`
	ReplicaDSN       string          `json:"replica_dsn"`
	SigningKey       string          `json:"signing_key"`
	ReportTokenTTL   *timex.Duration `json:"report_token_ttl"`
	CVMID            string          `json:"cvm_id"`
	MetadataURL      string          `json:"metadata_url"`
	MetadataTimeout  *timex.Duration `json:"metadata_timeout"`
	UpstreamURL      string          `json:"upstream_url"`
	UpstreamToken    string          `json:"upstream_token"`
	UpstreamTimeout  *timex.Duration `json:"upstream_timeout"`
	LedgerRPCURL     string          `json:"ledger_rpc_url"`
	LedgerContract   string          `json:"ledger_contract"`
	LedgerMethod     string          `json:"ledger_method"`
	LedgerPrivateKey string          `json:"ledger_private_key"`
	LedgerTimeout    *timex.Duration `json:"ledger_timeout"`
	ReportBucket     string          `json:"report_bucket"`
	S3Region         string          `json:"s3_region"`
	S3BaseEndpoint   string          `json:"s3_base_endpoint"`
	S3AccessKey      string          `json:"s3_access_key"`
	S3SecretKey      string          `json:"s3_secret_key"`
	ArchiveTimeout   *timex.Duration `json:"archive_timeout"`
}

// parseJson loads the file named by -c/-config, if any, and overlays its
// values on config. A missing or malformed file panics, like a bad flag.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.ListenAddr, c.ListenAddr)
	setString(&config.MetricsAddr, c.MetricsAddr)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.NodeEnv, c.NodeEnv)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.ReplicaDSN, c.ReplicaDSN)
	setString(&config.SigningKey, c.SigningKey)
	setString(&config.CVMID, c.CVMID)
	setString(&config.MetadataURL, c.MetadataURL)
	setString(&config.UpstreamURL, c.UpstreamURL)
	setString(&config.UpstreamToken, c.UpstreamToken)
	setString(&config.LedgerRPCURL, c.LedgerRPCURL)
	setString(&config.LedgerContract, c.LedgerContract)
	setString(&config.LedgerMethod, c.LedgerMethod)
	setString(&config.LedgerPrivateKey, c.LedgerPrivateKey)
	setString(&config.ReportBucket, c.ReportBucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)

	if c.ReportTokenTTL != nil {
		config.ReportTokenTTL = c.ReportTokenTTL.Duration
	}
	if c.MetadataTimeout != nil {
		config.MetadataTimeout = c.MetadataTimeout.Duration
	}
	if c.UpstreamTimeout != nil {
		config.UpstreamTimeout = c.UpstreamTimeout.Duration
	}
	if c.LedgerTimeout != nil {
		config.LedgerTimeout = c.LedgerTimeout.Duration
	}
	if c.ArchiveTimeout != nil {
		config.ArchiveTimeout = c.ArchiveTimeout.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
