package models

import "time"

// BlockStats is one fully aggregated block of ao mainnet activity, with the
// rolling totals carried forward from the previous block.
type BlockStats struct {
	Height           uint64 `json:"height"`
	Timestamp        uint64 `json:"timestamp"`
	TxCount          uint64 `json:"tx_count"`
	EvalCount        uint64 `json:"eval_count"`
	TransferCount    uint64 `json:"transfer_count"`
	NewProcessCount  uint64 `json:"new_process_count"`
	NewModuleCount   uint64 `json:"new_module_count"`
	ActiveUsers      uint64 `json:"active_users"`
	ActiveProcesses  uint64 `json:"active_processes"`
	TxCountRolling   uint64 `json:"tx_count_rolling"`
	ProcessesRolling uint64 `json:"processes_rolling"`
	ModulesRolling   uint64 `json:"modules_rolling"`
}

// ExplorerRow is a persisted per-block statistics row, for both the live
// atlas_explorer table and the materialized ao_mainnet_explorer table.
type ExplorerRow struct {
	TS time.Time
	BlockStats
}

// BlockMetrics is one block of counters aggregated out of the persisted
// mainnet message tables, before rolling totals are applied.
type BlockMetrics struct {
	TS              time.Time `json:"ts"`
	Height          uint64    `json:"height"`
	TxCount         uint64    `json:"tx_count"`
	EvalCount       uint64    `json:"eval_count"`
	TransferCount   uint64    `json:"transfer_count"`
	NewProcessCount uint64    `json:"new_process_count"`
	NewModuleCount  uint64    `json:"new_module_count"`
	ActiveUsers     uint64    `json:"active_users"`
	ActiveProcesses uint64    `json:"active_processes"`
}

// StatsTx is one Data-Protocol=ao transaction classified for the global
// stats indexer. Type/Action/Process are pulled from the first matching tag.
type StatsTx struct {
	ID             string
	BlockHeight    uint64
	BlockTimestamp int64
	Owner          string
	Type           string
	Action         string
	Process        string
}
