package models

import "time"

// Response shapes served by the HTTP query surface.

// Delegator is one wallet's stake within a project snapshot.
type Delegator struct {
	Wallet   string `json:"wallet"`
	EOA      string `json:"eoa"`
	Ticker   string `json:"ticker"`
	Factor   uint32 `json:"factor"`
	Amount   string `json:"amount"`
	ArAmount string `json:"ar_amount"`
}

// ProjectTotal aggregates a project's delegated stake for one ticker.
type ProjectTotal struct {
	Ticker          string  `json:"ticker"`
	Amount          float64 `json:"amount"`
	DelegatorsCount uint32  `json:"delegators_count"`
	ArAmount        float64 `json:"ar_amount"`
}

// ProjectSnapshot is the newest complete delegation picture of one project.
type ProjectSnapshot struct {
	Project    string         `json:"project"`
	TS         time.Time      `json:"ts"`
	Totals     []ProjectTotal `json:"totals"`
	Delegators []Delegator    `json:"delegators"`
}

// IdentityLink ties a Ledger wallet to the bridged EOA it was observed with.
type IdentityLink struct {
	Wallet string `json:"wallet"`
	EOA    string `json:"eoa"`
	TS     int64  `json:"ts"`
}

// OracleSnapshotFeedEntry is one historical oracle cycle with its totals.
type OracleSnapshotFeedEntry struct {
	TS         time.Time `json:"ts"`
	Ticker     string    `json:"ticker"`
	TxID       string    `json:"tx_id"`
	Total      float64   `json:"total"`
	Delegators uint64    `json:"delegators"`
}

// DelegationPreferenceOut is one target of a historical delegation choice.
type DelegationPreferenceOut struct {
	WalletTo string `json:"wallet_to"`
	Factor   uint32 `json:"factor"`
}

// DelegationMappingHistory groups a wallet's delegation rows per broadcast.
type DelegationMappingHistory struct {
	TS          time.Time                 `json:"ts"`
	Height      uint32                    `json:"height"`
	TxID        string                    `json:"tx_id"`
	Wallet      string                    `json:"wallet"`
	Preferences []DelegationPreferenceOut `json:"preferences"`
}

// DelegationHeight is one indexed Delegation-Mappings broadcast.
type DelegationHeight struct {
	Height uint32 `json:"height"`
	TxID   string `json:"tx_id"`
}

// MultiDelegator is a wallet spreading stake across several projects.
type MultiDelegator struct {
	Wallet       string   `json:"wallet"`
	EOA          string   `json:"eoa"`
	ProjectCount uint64   `json:"project_count"`
	Projects     []string `json:"projects"`
}

// ProjectCycleTotal is a project's per-ticker stake at one oracle cycle.
type ProjectCycleTotal struct {
	TxID       string    `json:"tx_id"`
	TS         time.Time `json:"ts"`
	USDSTotal  float64   `json:"usds_total"`
	DAITotal   float64   `json:"dai_total"`
	StethTotal float64   `json:"steth_total"`
}

// MainnetMessage is one persisted mainnet message with its tags attached.
type MainnetMessage struct {
	Protocol       string `json:"protocol"`
	BlockHeight    uint32 `json:"block_height"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	MsgID          string `json:"msg_id"`
	Owner          string `json:"owner"`
	Recipient      string `json:"recipient"`
	BundledIn      string `json:"bundled_in"`
	DataSize       string `json:"data_size"`
	Tags           []Tag  `json:"tags"`
	IndexedAt      int64  `json:"indexed_at"`
}

// TokenMessage is one persisted AO token message with its tags attached.
type TokenMessage struct {
	Source         string `json:"source"`
	BlockHeight    uint32 `json:"block_height"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	MsgID          string `json:"msg_id"`
	Owner          string `json:"owner"`
	Recipient      string `json:"recipient"`
	BundledIn      string `json:"bundled_in"`
	DataSize       string `json:"data_size"`
	Tags           []Tag  `json:"tags"`
	IndexedAt      int64  `json:"indexed_at"`
}

// TokenMessageFilter holds the optional predicates of a token message query.
type TokenMessageFilter struct {
	Source    string
	Action    string
	MinQty    string
	MaxQty    string
	FromTS    *uint64
	ToTS      *uint64
	BlockMin  *uint32
	BlockMax  *uint32
	Recipient string
	Sender    string
	Ascending bool
	Limit     uint64
	Offset    uint64
}

// MainnetProtocolInfo reports per-stream indexing progress.
type MainnetProtocolInfo struct {
	Protocol            string  `json:"protocol"`
	BlockHeight         uint32  `json:"block_height"`
	StartHeight         uint32  `json:"start_height"`
	IndexedAt           int64   `json:"indexed_at"`
	LastProcessedHeight *uint32 `json:"last_processed_height"`
	LastProcessedAt     *int64  `json:"last_processed_at"`
	LastCursor          *string `json:"last_cursor"`
}

// TokenIndexingInfo reports the AO token stream's progress and lag.
type TokenIndexingInfo struct {
	StartHeight         uint32  `json:"start_height"`
	ArweaveTip          *uint64 `json:"arweave_tip"`
	LastProcessedHeight *uint32 `json:"last_processed_height"`
	LastProcessedAt     *int64  `json:"last_processed_at"`
	MaxBlockHeight      *uint32 `json:"max_block_height"`
	LatestIndexedAt     *int64  `json:"latest_indexed_at"`
	TotalMessages       uint64  `json:"total_messages"`
	TransferMessages    uint64  `json:"transfer_messages"`
	ProcessMessages     uint64  `json:"process_messages"`
	BlockLag            *uint64 `json:"block_lag"`
}

// TokenActionCount is the observed frequency of one Action tag value.
type TokenActionCount struct {
	Action string `json:"action"`
	Count  uint64 `json:"count"`
}

// TokenTagCount is the observed frequency of one tag value.
type TokenTagCount struct {
	Value string `json:"value"`
	Count uint64 `json:"count"`
}

// TokenFrequencyInfo summarizes tag value distributions of the token stream.
type TokenFrequencyInfo struct {
	Actions       []TokenActionCount `json:"actions"`
	TopSenders    []TokenTagCount    `json:"top_senders"`
	TopRecipients []TokenTagCount    `json:"top_recipients"`
}

// TokenQuantityRank is one richlist entry, quantity in human units.
type TokenQuantityRank struct {
	Address       string `json:"address"`
	TotalQuantity string `json:"total_quantity"`
}

// TokenRichlist ranks addresses by credited and debited token volume.
type TokenRichlist struct {
	TopSpenders  []TokenQuantityRank `json:"top_spenders"`
	TopReceivers []TokenQuantityRank `json:"top_receivers"`
}

// ExplorerDayStats is explorer activity aggregated over one UTC day.
type ExplorerDayStats struct {
	Day                       string `json:"day"`
	ProcessedBlocks           uint64 `json:"processed_blocks"`
	Txs                       uint64 `json:"txs"`
	Evals                     uint64 `json:"evals"`
	Transfers                 uint64 `json:"transfers"`
	NewProcessesOverBlocks    uint64 `json:"new_processes_over_blocks"`
	NewModulesOverBlocks      uint64 `json:"new_modules_over_blocks"`
	ActiveUsersOverBlocks     uint64 `json:"active_users_over_blocks"`
	ActiveProcessesOverBlocks uint64 `json:"active_processes_over_blocks"`
	TxsRoll                   uint64 `json:"txs_roll"`
	ProcessesRoll             uint64 `json:"processes_roll"`
	ModulesRoll               uint64 `json:"modules_roll"`
}
