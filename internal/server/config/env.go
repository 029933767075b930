package config

import "github.com/dmitrijs2005/enclavekeeper/internal/flagx"

// parseEnv overlays the environment variables the enclave is deployed with.
// Malformed numeric values panic, consistent with parseJson and parseFlags.
func parseEnv(config *Config) {
	if err := flagx.EnvPort("PORT", &config.ListenAddr); err != nil {
		panic(err)
	}
	flagx.EnvString("METRICS_ADDR", &config.MetricsAddr)
	flagx.EnvString("LOG_LEVEL", &config.LogLevel)
	flagx.EnvString("NODE_ENV", &config.NodeEnv)

	flagx.EnvString("DATABASE_URL", &config.DatabaseDSN)
	flagx.EnvString("DATABASE_REPLICA_URL", &config.ReplicaDSN)

	flagx.EnvString("SIGNING_KEY", &config.SigningKey)
	flagx.EnvString("CVM_ID", &config.CVMID)

	flagx.EnvString("METADATA_URL", &config.MetadataURL)
	if err := flagx.EnvDuration("METADATA_TIMEOUT", &config.MetadataTimeout); err != nil {
		panic(err)
	}

	flagx.EnvString("MOCK_API_URL", &config.UpstreamURL)
	flagx.EnvString("MOCK_API_TOKEN", &config.UpstreamToken)

	flagx.EnvString("BASE_RPC_URL", &config.LedgerRPCURL)
	flagx.EnvString("KMS_CONTRACT", &config.LedgerContract)
	flagx.EnvString("DEPLOYER_PRIVATE_KEY", &config.LedgerPrivateKey)
	if err := flagx.EnvDuration("LEDGER_TIMEOUT", &config.LedgerTimeout); err != nil {
		panic(err)
	}

	flagx.EnvString("REPORT_BUCKET", &config.ReportBucket)
	flagx.EnvString("AWS_REGION", &config.S3Region)
	flagx.EnvString("S3_ENDPOINT", &config.S3BaseEndpoint)
	flagx.EnvString("AWS_ACCESS_KEY_ID", &config.S3AccessKey)
	flagx.EnvString("AWS_SECRET_ACCESS_KEY", &config.S3SecretKey)
	if err := flagx.EnvDuration("ARCHIVE_TIMEOUT", &config.ArchiveTimeout); err != nil {
		panic(err)
	}

	flagx.EnvString("BUILD_SHA", &config.BuildSHA)
	flagx.EnvString("BUILD_TIME", &config.BuildTime)
	flagx.EnvString("ENVIRONMENT", &config.Environment)
}
