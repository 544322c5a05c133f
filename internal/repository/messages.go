package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/permaweb/atlas/internal/models"
)

// InsertMainnetMessages persists one page of mainnet messages.
func (s *Store) InsertMainnetMessages(ctx context.Context, rows []models.MessageRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{
			r.TS, r.Protocol, r.BlockHeight, r.BlockTimestamp,
			r.MsgID, r.Owner, r.Recipient, r.BundledIn, r.DataSize,
		})
	}
	return s.batchInsert(ctx, "ao_mainnet_messages", 9, batch)
}

// InsertMainnetMessageTags persists the tags of one page of messages.
func (s *Store) InsertMainnetMessageTags(ctx context.Context, rows []models.MessageTagRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{
			r.TS, r.Protocol, r.BlockHeight, r.MsgID, r.TagKey, r.TagValue,
		})
	}
	return s.batchInsert(ctx, "ao_mainnet_message_tags", 6, batch)
}

// StoreCursor records a protocol stream's resume point.
func (s *Store) StoreCursor(ctx context.Context, state models.CursorState) error {
	return s.batchInsert(ctx, "ao_mainnet_block_state", 4, [][]any{{
		state.Protocol, state.LastCompleteHeight, state.LastCursor, state.UpdatedAt,
	}})
}

// LoadCursor returns a protocol stream's most recent resume point, or nil
// when the stream has never committed.
func (s *Store) LoadCursor(ctx context.Context, protocol string) (*models.CursorState, error) {
	row := s.db.QueryRowContext(ctx,
		`select updated_at, protocol, last_complete_height, last_cursor
		 from ao_mainnet_block_state
		 where protocol = ?
		 order by updated_at desc
		 limit 1`, protocol)
	var state models.CursorState
	err := row.Scan(&state.UpdatedAt, &state.Protocol, &state.LastCompleteHeight, &state.LastCursor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor for protocol %s: %w", protocol, err)
	}
	return &state, nil
}

// MaxIndexedHeight returns the highest persisted message height for a
// protocol stream. Used to clamp resume points against stale state rows.
func (s *Store) MaxIndexedHeight(ctx context.Context, protocol string) (uint32, error) {
	row := s.db.QueryRowContext(ctx,
		"select ifNull(max(block_height), 0) from ao_mainnet_messages where protocol = ?", protocol)
	var height uint32
	if err := row.Scan(&height); err != nil {
		return 0, fmt.Errorf("failed to read max indexed height for %s: %w", protocol, err)
	}
	return height, nil
}

// InsertTokenMessages persists one page of AO token messages.
func (s *Store) InsertTokenMessages(ctx context.Context, rows []models.TokenMessageRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{
			r.TS, r.Source, r.BlockHeight, r.BlockTimestamp,
			r.MsgID, r.Owner, r.Recipient, r.BundledIn, r.DataSize,
		})
	}
	return s.batchInsert(ctx, "ao_token_messages", 9, batch)
}

// InsertTokenMessageTags persists the tags of one page of token messages.
func (s *Store) InsertTokenMessageTags(ctx context.Context, rows []models.TokenMessageTagRow) error {
	batch := make([][]any, 0, len(rows))
	for _, r := range rows {
		batch = append(batch, []any{
			r.TS, r.Source, r.BlockHeight, r.MsgID, r.TagKey, r.TagValue,
		})
	}
	return s.batchInsert(ctx, "ao_token_message_tags", 6, batch)
}

// StoreTokenCursor commits the token stream's last fully drained height.
func (s *Store) StoreTokenCursor(ctx context.Context, state models.TokenCursorState) error {
	return s.batchInsert(ctx, "ao_token_block_state", 2, [][]any{{
		state.LastCompleteHeight, state.UpdatedAt,
	}})
}

// LoadTokenCursor returns the token stream's resume point, or nil.
func (s *Store) LoadTokenCursor(ctx context.Context) (*models.TokenCursorState, error) {
	row := s.db.QueryRowContext(ctx,
		`select last_complete_height, updated_at
		 from ao_token_block_state
		 order by updated_at desc
		 limit 1`)
	var state models.TokenCursorState
	err := row.Scan(&state.LastCompleteHeight, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token cursor: %w", err)
	}
	return &state, nil
}
