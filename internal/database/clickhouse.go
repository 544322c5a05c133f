// Package database provides database connection utilities.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/permaweb/atlas/internal/config"
)

// ClickHouse wraps the column-store connections: an admin handle without a
// database selected (for create database) and the working handle bound to
// the configured database.
type ClickHouse struct {
	db       *sql.DB
	admin    *sql.DB
	database string
}

// NewClickHouse opens the column-store connections and verifies them.
func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	addr, protocol, err := parseEndpoint(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse clickhouse url: %w", err)
	}

	open := func(database string) *sql.DB {
		return clickhouse.OpenDB(&clickhouse.Options{
			Addr:     []string{addr},
			Protocol: protocol,
			Auth: clickhouse.Auth{
				Database: database,
				Username: cfg.User,
				Password: cfg.Password,
			},
			DialTimeout: 10 * time.Second,
			Settings: clickhouse.Settings{
				"date_time_input_format": "best_effort",
			},
		})
	}

	admin := open("")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := admin.PingContext(ctx); err != nil {
		admin.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &ClickHouse{
		db:       open(cfg.Database),
		admin:    admin,
		database: cfg.Database,
	}, nil
}

// DB returns the working database handle.
func (c *ClickHouse) DB() *sql.DB {
	return c.db
}

// Close closes both connections.
func (c *ClickHouse) Close() {
	if c.db != nil {
		c.db.Close()
	}
	if c.admin != nil {
		c.admin.Close()
	}
}

// Ping verifies the working connection is alive.
func (c *ClickHouse) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// EnsureSchema creates the database and every table the indexers and the
// query surface touch. All statements are idempotent; schema evolution is
// expressed as add-column-if-not-exists alters so restarts are safe.
func (c *ClickHouse) EnsureSchema(ctx context.Context) error {
	if _, err := c.admin.ExecContext(ctx, "create database if not exists "+c.database); err != nil {
		return fmt.Errorf("failed to create database %s: %w", c.database, err)
	}
	stmts := []string{
		"create table if not exists oracle_snapshots(ts DateTime64(3), ticker String, tx_id String) engine=MergeTree order by (ticker, ts)",
		"create table if not exists wallet_balances(ts DateTime64(3), ticker String, wallet String, eoa String, amount String, tx_id String) engine=ReplacingMergeTree order by (ticker, wallet, ts)",
		"create table if not exists wallet_delegations(ts DateTime64(3), wallet String, payload String) engine=ReplacingMergeTree order by (wallet, ts)",
		"create table if not exists flp_positions(ts DateTime64(3), ticker String, wallet String, eoa String, project String, factor UInt32, amount String) engine=ReplacingMergeTree order by (project, wallet, ts)",
		"create table if not exists delegation_mappings(ts DateTime64(3), height UInt32, tx_id String, wallet_from String, wallet_to String, factor UInt32) engine=ReplacingMergeTree order by (height, tx_id, wallet_from, wallet_to)",
		"create table if not exists atlas_explorer(ts DateTime64(3), height UInt64, tx_count UInt64, eval_count UInt64, transfer_count UInt64, new_process_count UInt64, new_module_count UInt64, active_users UInt64, active_processes UInt64, tx_count_rolling UInt64, processes_rolling UInt64, modules_rolling UInt64) engine=ReplacingMergeTree order by height",
		"create table if not exists ao_mainnet_explorer(ts DateTime64(3), height UInt64, tx_count UInt64, eval_count UInt64, transfer_count UInt64, new_process_count UInt64, new_module_count UInt64, active_users UInt64, active_processes UInt64, tx_count_rolling UInt64, processes_rolling UInt64, modules_rolling UInt64) engine=ReplacingMergeTree order by height",
		"create table if not exists ao_mainnet_messages(ts DateTime64(3), protocol String, block_height UInt32, block_timestamp UInt64, msg_id String, owner String, recipient String, bundled_in String, data_size String) engine=ReplacingMergeTree order by (protocol, block_height, msg_id)",
		"create table if not exists ao_mainnet_message_tags(ts DateTime64(3), protocol String, block_height UInt32, msg_id String, tag_key String, tag_value String) engine=ReplacingMergeTree order by (tag_key, tag_value, block_height, msg_id)",
		"create table if not exists ao_mainnet_block_state(protocol String, last_complete_height UInt32, last_cursor String, updated_at DateTime64(3)) engine=ReplacingMergeTree order by protocol",
		"create table if not exists ao_token_messages(ts DateTime64(3), source String, block_height UInt32, block_timestamp UInt64, msg_id String, owner String, recipient String, bundled_in String, data_size String) engine=ReplacingMergeTree order by (source, block_height, msg_id)",
		"create table if not exists ao_token_message_tags(ts DateTime64(3), source String, block_height UInt32, msg_id String, tag_key String, tag_value String) engine=ReplacingMergeTree order by (source, tag_key, tag_value, block_height, msg_id)",
		"create table if not exists ao_token_block_state(last_complete_height UInt32, updated_at DateTime64(3)) engine=ReplacingMergeTree order by updated_at",
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	alters := []string{
		"alter table wallet_balances add column if not exists eoa String after wallet",
		"alter table wallet_balances add column if not exists ar_balance String after amount",
		"alter table flp_positions add column if not exists eoa String after wallet",
		"alter table flp_positions add column if not exists ar_amount String after amount",
		"alter table flp_positions modify column project String",
		"alter table delegation_mappings add column if not exists ts DateTime64(3) default now()",
	}
	for _, stmt := range alters {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to alter table: %w", err)
		}
	}
	return nil
}

func parseEndpoint(raw string) (addr string, protocol clickhouse.Protocol, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", clickhouse.Native, err
	}
	switch u.Scheme {
	case "http", "https":
		host := u.Host
		if u.Port() == "" {
			host += ":8123"
		}
		return host, clickhouse.HTTP, nil
	case "clickhouse", "tcp", "":
		host := u.Host
		if host == "" {
			host = raw
		}
		if u.Port() == "" {
			host += ":9000"
		}
		return host, clickhouse.Native, nil
	default:
		return "", clickhouse.Native, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}
