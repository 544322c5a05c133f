package repository

import (
	"context"
	"fmt"

	"github.com/permaweb/atlas/internal/models"
)

// InsertOracles records observed oracle snapshot messages.
func (s *Store) InsertOracles(ctx context.Context, rows []models.OracleSnapshotRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{r.TS, r.Ticker, r.TxID})
	}
	return s.batchInsert(ctx, "oracle_snapshots", 3, batch)
}

// InsertBalances persists one cycle of per-wallet balances.
func (s *Store) InsertBalances(ctx context.Context, rows []models.WalletBalanceRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{r.TS, r.Ticker, r.Wallet, r.EOA, r.Amount, r.ArBalance, r.TxID})
	}
	return s.batchInsert(ctx, "wallet_balances", 7, batch)
}

// InsertDelegations persists the raw resolved delegation payloads.
func (s *Store) InsertDelegations(ctx context.Context, rows []models.WalletDelegationRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{r.TS, r.Wallet, r.Payload})
	}
	return s.batchInsert(ctx, "wallet_delegations", 3, batch)
}

// InsertPositions persists one cycle of apportioned project positions.
func (s *Store) InsertPositions(ctx context.Context, rows []models.PositionRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{r.TS, r.Ticker, r.Wallet, r.EOA, r.Project, r.Factor, r.Amount, r.ArAmount})
	}
	return s.batchInsert(ctx, "flp_positions", 8, batch)
}

// InsertDelegationMappings persists the rows of one mapping broadcast.
func (s *Store) InsertDelegationMappings(ctx context.Context, rows []models.DelegationMappingRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{r.TS, r.Height, r.TxID, r.WalletFrom, r.WalletTo, r.Factor})
	}
	return s.batchInsert(ctx, "delegation_mappings", 6, batch)
}

// HasOracle reports whether an oracle message was already processed.
func (s *Store) HasOracle(ctx context.Context, ticker, txID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		"select count() from oracle_snapshots where ticker = ? and tx_id = ? limit 1", ticker, txID)
	var cnt uint64
	if err := row.Scan(&cnt); err != nil {
		return false, fmt.Errorf("failed to check oracle snapshot %s/%s: %w", ticker, txID, err)
	}
	return cnt > 0, nil
}

// HasDelegationMapping reports whether a mapping broadcast was indexed.
func (s *Store) HasDelegationMapping(ctx context.Context, txID string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		"select count() from delegation_mappings where tx_id = ? limit 1", txID)
	var cnt uint64
	if err := row.Scan(&cnt); err != nil {
		return false, fmt.Errorf("failed to check delegation mapping %s: %w", txID, err)
	}
	return cnt > 0, nil
}
