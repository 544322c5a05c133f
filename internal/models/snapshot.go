package models

import "time"

// OracleSnapshotRow records one observed Set-Balances oracle message
// (table oracle_snapshots). A snapshot cycle for a ticker runs only when the
// oracle message id has not been recorded before.
type OracleSnapshotRow struct {
	TS     time.Time
	Ticker string
	TxID   string
}

// BalanceRecord is one row of an oracle balance CSV: a bridged wallet, its
// staked amount in raw base units, and its Ledger address.
type BalanceRecord struct {
	EOA       string `json:"eoa"`
	Amount    string `json:"amount"`
	ArAddress string `json:"ar_address"`
}

// WalletBalanceRow is a persisted per-wallet balance observation
// (table wallet_balances). Amount is a string-encoded decimal scaled to
// human units, ArBalance the wallet's native AR holdings.
type WalletBalanceRow struct {
	TS        time.Time
	Ticker    string
	Wallet    string
	EOA       string
	Amount    string
	ArBalance string
	TxID      string
}

// WalletDelegationRow keeps the raw resolved delegation payload for audit
// (table wallet_delegations).
type WalletDelegationRow struct {
	TS      time.Time
	Wallet  string
	Payload string
}

// PositionRow is a wallet's stake apportioned to one project by its
// delegation factor (table flp_positions).
type PositionRow struct {
	TS       time.Time
	Ticker   string
	Wallet   string
	EOA      string
	Project  string
	Factor   uint32
	Amount   string
	ArAmount string
}

// DelegationMappingRow is one historical delegation edge observed on the
// Ledger (table delegation_mappings).
type DelegationMappingRow struct {
	TS         time.Time
	Height     uint32
	TxID       string
	WalletFrom string
	WalletTo   string
	Factor     uint32
}

// MappingRecord is one parsed line of a delegation mapping CSV blob.
type MappingRecord struct {
	WalletFrom string
	WalletTo   string
	Factor     uint32
}

// DelegationMappingMeta is one Action=Delegation-Mappings broadcast as seen
// on the gateway, before its CSV blob is fetched.
type DelegationMappingMeta struct {
	TxID   string `json:"tx_id"`
	Height uint32 `json:"height"`
}

// MappingPage is one page of delegation-mapping broadcasts.
type MappingPage struct {
	Mappings    []DelegationMappingMeta `json:"mappings"`
	HasNextPage bool                    `json:"has_next_page"`
	EndCursor   string                  `json:"end_cursor"`
}

// PrefEntry is a single delegation target within a preference document.
type PrefEntry struct {
	WalletTo string `json:"walletTo"`
	Factor   uint32 `json:"factor"`
}

// Preference is a wallet's resolved delegation preference document. A
// missing TotalFactor is backfilled with the sum of the entry factors.
type Preference struct {
	Key             string      `json:"_key,omitempty"`
	LastUpdate      uint64      `json:"lastUpdate,omitempty"`
	TotalFactor     uint32      `json:"totalFactor,omitempty"`
	Wallet          string      `json:"wallet,omitempty"`
	DelegationPrefs []PrefEntry `json:"delegationPrefs"`
	DelegationMsgID string      `json:"delegationMsgId,omitempty"`
}

// MintReport is a published minting report for one distribution tick.
// Amounts stay string-encoded; reports predate any fixed decimal scale.
type MintReport struct {
	DistributionTick uint32 `json:"DistributionTick"`
	TotalMinted      string `json:"TotalMinted"`
	TotalInflow      string `json:"TotalInflow"`
	Timestamp        uint64 `json:"Timestamp"`
	AoKept           string `json:"AoKept"`
	AoExchangedForPi string `json:"AoExchangedForPi"`
	ReportID         string `json:"ReportId,omitempty"`
}
