// Package config provides configuration loading for the Atlas service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Indexers   IndexersConfig   `mapstructure:"indexers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ClickHouseConfig holds the column-store connection settings.
type ClickHouseConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// GatewayConfig holds the Arweave gateway endpoints.
type GatewayConfig struct {
	Primary string `mapstructure:"primary"`
	Mainnet string `mapstructure:"mainnet"`
}

// SnapshotConfig holds the oracle snapshot pipeline settings.
type SnapshotConfig struct {
	RefreshSecs uint64 `mapstructure:"refresh_secs"`
	Concurrency int    `mapstructure:"concurrency"`
	Tickers     string `mapstructure:"tickers"`
}

// TickerList returns the configured oracle tickers, trimmed and lowercased.
func (c SnapshotConfig) TickerList() []string {
	var out []string
	for _, t := range strings.Split(c.Tickers, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// RefreshInterval returns the snapshot cycle period.
func (c SnapshotConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSecs) * time.Second
}

// IndexersConfig toggles which worker families the supervisor spawns.
type IndexersConfig struct {
	AO       bool `mapstructure:"ao"`
	PI       bool `mapstructure:"pi"`
	FLP      bool `mapstructure:"flp"`
	Explorer bool `mapstructure:"explorer"`
	Mainnet  bool `mapstructure:"mainnet"`
}

// Load reads configuration from the optional atlas TOML file and
// environment variables. The file path comes from ATLAS_CONFIG and
// defaults to ./atlas.toml; a missing file is not an error.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigType("toml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Explicitly bind the flat environment contract (nested struct issue
	// with viper's AutomaticEnv).
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("clickhouse.url", "CLICKHOUSE_URL")
	v.BindEnv("clickhouse.user", "CLICKHOUSE_USER")
	v.BindEnv("clickhouse.password", "CLICKHOUSE_PASSWORD")
	v.BindEnv("clickhouse.database", "CLICKHOUSE_DATABASE")
	v.BindEnv("snapshot.refresh_secs", "ORACLE_REFRESH_SECS")
	v.BindEnv("snapshot.concurrency", "DELEGATION_CONCURRENCY")
	v.BindEnv("snapshot.tickers", "ORACLE_TICKERS")
	v.BindEnv("gateway.primary", "PRIMARY_ARWEAVE_GATEWAY")

	path := viper.New()
	path.AutomaticEnv()
	path.SetDefault("ATLAS_CONFIG", "atlas.toml")
	v.SetConfigFile(path.GetString("ATLAS_CONFIG"))

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is OK, we use defaults and env vars.
		if !errors.Is(err, fs.ErrNotExist) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 1212)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("clickhouse.url", "http://localhost:8123")
	v.SetDefault("clickhouse.user", "default")
	v.SetDefault("clickhouse.password", "")
	v.SetDefault("clickhouse.database", "atlas_oracles")

	v.SetDefault("gateway.primary", "https://frostor.xyz")
	v.SetDefault("gateway.mainnet", "https://permagate.io")

	v.SetDefault("snapshot.refresh_secs", 300)
	v.SetDefault("snapshot.concurrency", 16)
	v.SetDefault("snapshot.tickers", "usds,dai,steth")

	// Every indexer family runs unless the atlas TOML disables it.
	v.SetDefault("indexers.ao", true)
	v.SetDefault("indexers.pi", true)
	v.SetDefault("indexers.flp", true)
	v.SetDefault("indexers.explorer", true)
	v.SetDefault("indexers.mainnet", true)
}
