package config

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dmitrijs2005/enclavekeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable parseEnv reads so the host environment
// cannot leak into the assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "METRICS_ADDR", "LOG_LEVEL", "NODE_ENV", "DATABASE_URL", "DATABASE_REPLICA_URL",
		"SIGNING_KEY", "CVM_ID", "METADATA_URL", "METADATA_TIMEOUT", "MOCK_API_URL", "MOCK_API_TOKEN",
		"BASE_RPC_URL", "KMS_CONTRACT", "DEPLOYER_PRIVATE_KEY", "LEDGER_TIMEOUT", "REPORT_BUCKET",
		"AWS_REGION", "S3_ENDPOINT", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "ARCHIVE_TIMEOUT",
		"BUILD_SHA", "BUILD_TIME", "ENVIRONMENT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, "", c.MetricsAddr)
	assert.Equal(t, "development", c.NodeEnv)
	assert.Equal(t, "", c.DatabaseDSN)
	assert.Equal(t, "", c.SigningKey)
	assert.Equal(t, "http://localhost:8090/compose-hash", c.MetadataURL)
	assert.Equal(t, 2*time.Second, c.MetadataTimeout)
	assert.Equal(t, "https://mainnet.base.org", c.LedgerRPCURL)
	assert.Equal(t, "0x2f83172A49584C017F2B256F0FB2Dca14126Ba9C", c.LedgerContract)
	assert.Equal(t, 10*time.Second, c.LedgerTimeout)
	assert.Equal(t, 24*time.Hour, c.ReportTokenTTL)
	assert.Equal(t, "us-east-1", c.S3Region)
	assert.False(t, c.IsProduction())
	assert.False(t, c.Persisted())
	assert.False(t, c.LedgerEnabled())
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	clearEnv(t)

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, want, *c)
}

func TestLoadConfig_Precedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	clearEnv(t)

	path := writeTempJSON(t, "", "", map[string]any{
		"listen_addr":  ":7000",
		"database_dsn": "postgres://json",
		"signing_key":  "from-json",
	})
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("SIGNING_KEY", "from-env")
	os.Args = []string{"testbin", "-c", path, "-k", "from-flag"}

	c := LoadConfig()

	assert.Equal(t, ":7000", c.ListenAddr, "json over defaults")
	assert.Equal(t, "postgres://env", c.DatabaseDSN, "env over json")
	assert.Equal(t, "from-flag", c.SigningKey, "flags over env")
}

func TestValidate(t *testing.T) {
	t.Run("dev falls back to insecure key", func(t *testing.T) {
		var c Config
		c.LoadDefaults()
		require.NoError(t, c.Validate())
		assert.Equal(t, DevSigningKey, c.SigningKey)
	})

	t.Run("production without key is fatal", func(t *testing.T) {
		var c Config
		c.LoadDefaults()
		c.NodeEnv = "production"
		c.UpstreamToken = "real"
		err := c.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrConfiguration))
		assert.Empty(t, c.SigningKey, "no fallback in production")
	})

	t.Run("environment alone selects production", func(t *testing.T) {
		var c Config
		c.LoadDefaults()
		c.Environment = "Production"
		c.UpstreamToken = "real"
		require.True(t, c.IsProduction())
		err := c.Validate()
		assert.ErrorIs(t, err, common.ErrConfiguration)
		assert.Empty(t, c.SigningKey)
	})

	t.Run("production with key passes", func(t *testing.T) {
		var c Config
		c.LoadDefaults()
		c.NodeEnv = "production"
		c.SigningKey = "k"
		c.UpstreamToken = "real"
		assert.NoError(t, c.Validate())
	})

	t.Run("production keeps demo upstream token out", func(t *testing.T) {
		var c Config
		c.LoadDefaults()
		c.NodeEnv = "production"
		c.SigningKey = "k"
		assert.ErrorIs(t, c.Validate(), common.ErrConfiguration)
	})

	t.Run("non-positive timeout", func(t *testing.T) {
		var c Config
		c.LoadDefaults()
		c.MetadataTimeout = 0
		assert.ErrorIs(t, c.Validate(), common.ErrConfiguration)
	})
}
