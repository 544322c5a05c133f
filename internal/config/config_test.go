package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ATLAS_CONFIG", "does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1212, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)

	assert.Equal(t, "http://localhost:8123", cfg.ClickHouse.URL)
	assert.Equal(t, "atlas_oracles", cfg.ClickHouse.Database)

	assert.Equal(t, "https://frostor.xyz", cfg.Gateway.Primary)
	assert.Equal(t, "https://permagate.io", cfg.Gateway.Mainnet)

	assert.Equal(t, uint64(300), cfg.Snapshot.RefreshSecs)
	assert.Equal(t, 16, cfg.Snapshot.Concurrency)
	assert.Equal(t, []string{"usds", "dai", "steth"}, cfg.Snapshot.TickerList())

	assert.True(t, cfg.Indexers.AO)
	assert.True(t, cfg.Indexers.PI)
	assert.True(t, cfg.Indexers.FLP)
	assert.True(t, cfg.Indexers.Explorer)
	assert.True(t, cfg.Indexers.Mainnet)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ATLAS_CONFIG", "does-not-exist.toml")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CLICKHOUSE_URL", "clickhouse://ch.internal:9000")
	t.Setenv("ORACLE_TICKERS", "usds")
	t.Setenv("ORACLE_REFRESH_SECS", "60")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "clickhouse://ch.internal:9000", cfg.ClickHouse.URL)
	assert.Equal(t, []string{"usds"}, cfg.Snapshot.TickerList())
	assert.Equal(t, time.Minute, cfg.Snapshot.RefreshInterval())
}

func TestTickerListNormalizes(t *testing.T) {
	c := SnapshotConfig{Tickers: " USDS, dAi ,,steth "}
	assert.Equal(t, []string{"usds", "dai", "steth"}, c.TickerList())

	assert.Nil(t, SnapshotConfig{}.TickerList())
}
