package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/enclavekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   API bind address (e.g., ":8080")
//	-m string   Prometheus metrics bind address (empty disables)
//	-d string   PostgreSQL primary DSN
//	-r string   PostgreSQL read-replica DSN
//	-k string   HMAC signing key
//	-i string   enclave (CVM) identifier
//	-l string   log level
//	-b string   S3 bucket for signed report archives
//
// Flags not listed here are left to other components via flagx.FilterArgs.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-d", "-r", "-k", "-i", "-l", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.ListenAddr, "a", config.ListenAddr, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port for metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.ReplicaDSN, "r", config.ReplicaDSN, "read replica DSN")
	fs.StringVar(&config.SigningKey, "k", config.SigningKey, "signing key")
	fs.StringVar(&config.CVMID, "i", config.CVMID, "enclave identifier")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.ReportBucket, "b", config.ReportBucket, "S3 bucket for report archives")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
