package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/permaweb/atlas/internal/models"
)

func explorerValues(r models.ExplorerRow) []any {
	return []any{
		r.TS, r.Height, r.TxCount, r.EvalCount, r.TransferCount,
		r.NewProcessCount, r.NewModuleCount, r.ActiveUsers, r.ActiveProcesses,
		r.TxCountRolling, r.ProcessesRolling, r.ModulesRolling,
	}
}

// InsertExplorerStats appends rows to the live per-block stats table.
func (s *Store) InsertExplorerStats(ctx context.Context, rows []models.ExplorerRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, explorerValues(r))
	}
	return s.batchInsert(ctx, "atlas_explorer", 12, batch)
}

// InsertMainnetExplorerRows appends rows to the derived stats table.
func (s *Store) InsertMainnetExplorerRows(ctx context.Context, rows []models.ExplorerRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, explorerValues(r))
	}
	return s.batchInsert(ctx, "ao_mainnet_explorer", 12, batch)
}

// TruncateMainnetExplorer clears the derived stats table before a rebuild.
func (s *Store) TruncateMainnetExplorer(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "truncate table if exists ao_mainnet_explorer"); err != nil {
		return fmt.Errorf("failed to truncate ao_mainnet_explorer: %w", err)
	}
	return nil
}

const explorerColumns = `ts, height, tx_count, eval_count, transfer_count,
	 new_process_count, new_module_count, active_users, active_processes,
	 tx_count_rolling, processes_rolling, modules_rolling`

func scanExplorerRow(row *sql.Row) (*models.ExplorerRow, error) {
	var r models.ExplorerRow
	err := row.Scan(
		&r.TS, &r.Height, &r.TxCount, &r.EvalCount, &r.TransferCount,
		&r.NewProcessCount, &r.NewModuleCount, &r.ActiveUsers, &r.ActiveProcesses,
		&r.TxCountRolling, &r.ProcessesRolling, &r.ModulesRolling,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Timestamp = uint64(r.TS.Unix())
	return &r, nil
}

// LatestExplorerStats returns the newest live stats row, or nil.
func (s *Store) LatestExplorerStats(ctx context.Context) (*models.ExplorerRow, error) {
	row := s.db.QueryRowContext(ctx,
		"select "+explorerColumns+" from atlas_explorer order by height desc limit 1")
	out, err := scanExplorerRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest explorer stats: %w", err)
	}
	return out, nil
}

// LatestMainnetExplorerRow returns the newest derived stats row, or nil.
func (s *Store) LatestMainnetExplorerRow(ctx context.Context) (*models.ExplorerRow, error) {
	row := s.db.QueryRowContext(ctx,
		"select "+explorerColumns+" from ao_mainnet_explorer order by height desc limit 1")
	out, err := scanExplorerRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest derived explorer row: %w", err)
	}
	return out, nil
}

// FetchBlockMetrics aggregates per-block counters out of the persisted
// mainnet message tables, ascending from after_height, up to limit blocks.
func (s *Store) FetchBlockMetrics(ctx context.Context, afterHeight uint32, limit uint64) ([]models.BlockMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		select
			toDateTime64(max(m.block_timestamp), 3) as ts,
			m.block_height as height,
			count() as tx_count,
			countIf(lowerUTF8(t.tag_key) = 'action' and lowerUTF8(t.tag_value) = 'eval') as eval_count,
			countIf(lowerUTF8(t.tag_key) = 'action' and lowerUTF8(t.tag_value) = 'transfer') as transfer_count,
			countIf(lowerUTF8(t.tag_key) = 'type' and lowerUTF8(t.tag_value) = 'process') as new_process_count,
			countIf(lowerUTF8(t.tag_key) = 'type' and lowerUTF8(t.tag_value) = 'module') as new_module_count,
			uniqExact(m.owner) as active_users,
			uniqExactIf(t.tag_value, lowerUTF8(t.tag_key) in ('from-process','process','from-process-id','process-id')) as active_processes
		from ao_mainnet_messages m
		left join ao_mainnet_message_tags t
		  on t.protocol = m.protocol and t.block_height = m.block_height and t.msg_id = m.msg_id
		where m.block_height > ?
		group by m.block_height
		order by m.block_height asc
		limit ?`, afterHeight, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block metrics: %w", err)
	}
	defer rows.Close()

	var out []models.BlockMetrics
	for rows.Next() {
		var m models.BlockMetrics
		var ts time.Time
		if err := rows.Scan(
			&ts, &m.Height, &m.TxCount, &m.EvalCount, &m.TransferCount,
			&m.NewProcessCount, &m.NewModuleCount, &m.ActiveUsers, &m.ActiveProcesses,
		); err != nil {
			return nil, fmt.Errorf("failed to scan block metrics: %w", err)
		}
		m.TS = ts
		out = append(out, m)
	}
	return out, rows.Err()
}
