// Package models defines the domain types shared by the gateway client,
// the indexing workers, the column store and the HTTP query surface.
package models

import "time"

// Protocol identifies the tag-key casing variant of an ao mainnet message.
// Variant A uses lower-case tag keys, variant B uses Header-Case keys.
type Protocol string

const (
	ProtocolA Protocol = "A"
	ProtocolB Protocol = "B"
)

// Tag is a single name/value pair attached to a Ledger transaction. The
// original casing of the key is preserved end to end.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MessageMeta is one ao message as returned by the gateway GraphQL endpoint.
type MessageMeta struct {
	MsgID          string `json:"msg_id"`
	Owner          string `json:"owner"`
	Recipient      string `json:"recipient"`
	BlockHeight    uint32 `json:"block_height"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	BundledIn      string `json:"bundled_in"`
	DataSize       string `json:"data_size"`
	Tags           []Tag  `json:"tags"`
}

// MessagePage is one page of gateway scan results. EndCursor is the opaque
// pagination token of the last edge; empty when the gateway returned none.
type MessagePage struct {
	Messages    []MessageMeta `json:"messages"`
	HasNextPage bool          `json:"has_next_page"`
	EndCursor   string        `json:"end_cursor"`
}

// MessageRow is a persisted ao mainnet message (table ao_mainnet_messages).
type MessageRow struct {
	TS             time.Time
	Protocol       string
	BlockHeight    uint32
	BlockTimestamp uint64
	MsgID          string
	Owner          string
	Recipient      string
	BundledIn      string
	DataSize       string
}

// MessageTagRow is one tag of a persisted mainnet message
// (table ao_mainnet_message_tags).
type MessageTagRow struct {
	TS          time.Time
	Protocol    string
	BlockHeight uint32
	MsgID       string
	TagKey      string
	TagValue    string
}

// TokenMessageRow is a persisted AO token message (table ao_token_messages).
// Source discriminates the transfer sub-query from the process sub-query.
type TokenMessageRow struct {
	TS             time.Time
	Source         string
	BlockHeight    uint32
	BlockTimestamp uint64
	MsgID          string
	Owner          string
	Recipient      string
	BundledIn      string
	DataSize       string
}

// TokenMessageTagRow is one tag of a persisted token message
// (table ao_token_message_tags).
type TokenMessageTagRow struct {
	TS          time.Time
	Source      string
	BlockHeight uint32
	MsgID       string
	TagKey      string
	TagValue    string
}

// CursorState is the per-stream resume state (table ao_mainnet_block_state).
// An empty LastCursor means the stream advanced past LastCompleteHeight; a
// non-empty cursor means the next page resumes mid-block at that height.
type CursorState struct {
	UpdatedAt          time.Time
	Protocol           string
	LastCompleteHeight uint32
	LastCursor         string
}

// TokenCursorState is the AO token stream resume state
// (table ao_token_block_state). The token stream never persists a mid-block
// cursor: a height commits only once both sub-queries drained.
type TokenCursorState struct {
	LastCompleteHeight uint32
	UpdatedAt          time.Time
}
