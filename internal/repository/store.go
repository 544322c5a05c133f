// Package repository implements the column-store persistence and query
// layer: batch inserts for the indexing workers and the read queries behind
// the HTTP surface.
package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Store wraps the working database handle.
type Store struct {
	db *sql.DB
}

// New creates a store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// batchInsert appends rows to a table inside one transaction. The driver
// turns the prepared bare insert into a columnar batch.
func (s *Store) batchInsert(ctx context.Context, table string, cols int, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch for %s: %w", table, err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+table)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare batch for %s: %w", table, err)
	}
	for _, row := range rows {
		if len(row) != cols {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("row for %s has %d values, want %d", table, len(row), cols)
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to append row to %s: %w", table, err)
		}
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to close batch for %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch for %s: %w", table, err)
	}
	return nil
}

// zipTags pairs the index-aligned key/value arrays produced by the tag
// aggregation queries, dropping padding rows from the left join.
func zipTags(keys, values []string) [][2]string {
	var out [][2]string
	for i, key := range keys {
		if key == "" {
			continue
		}
		value := ""
		if i < len(values) {
			value = values[i]
		}
		out = append(out, [2]string{key, value})
	}
	return out
}
