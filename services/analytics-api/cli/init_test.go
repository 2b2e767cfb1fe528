package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prajanya-g/lvl.ai/services/analytics-api/config"
)

func TestWriteDefaultConfig(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "analytics-api.yaml")

	require.NoError(t, writeDefaultConfig(dest, defaultAPIYAML, false))
	err := writeDefaultConfig(dest, "other", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, writeDefaultConfig(dest, "other", true))
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "other", string(b))
}

func TestDefaultConfigLoads(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "analytics-api.yaml")
	require.NoError(t, writeDefaultConfig(dest, defaultAPIYAML, false))

	v := viper.New()
	v.SetConfigFile(dest)
	require.NoError(t, v.ReadInConfig())
	cfg := config.Load(v)

	assert.Equal(t, "api", cfg.Source)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "9090", cfg.GRPCPort)
	assert.Equal(t, 60, cfg.RateLimit)
	assert.Equal(t, "1m0s", cfg.RateWindow.String())
	assert.Equal(t, "24h0m0s", cfg.SnapshotTTL.String())
	assert.Equal(t, 30, cfg.StatsWindowDays)
	assert.False(t, cfg.PlayerCardDemoFallback)
	assert.Empty(t, cfg.OTelEndpoint)
}
