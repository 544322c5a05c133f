// Package parse decodes the blob payloads published on the Ledger: oracle
// balance CSVs, delegation mapping CSVs, delegation preference documents and
// minting reports.
package parse

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/permaweb/atlas/internal/models"
)

// BalancesCSV decodes an oracle Set-Balances payload. The sheet carries no
// header row; columns are eoa, amount, ar_address. Amount stays raw base
// units.
func BalancesCSV(data []byte) ([]models.BalanceRecord, error) {
	rows, err := readCSV(data, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balances csv: %w", err)
	}
	records := make([]models.BalanceRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.BalanceRecord{
			EOA:       row[0],
			Amount:    row[1],
			ArAddress: row[2],
		})
	}
	return records, nil
}

// MappingsCSV decodes a Delegation-Mappings payload. The sheet carries no
// header row; columns are wallet_from, wallet_to, factor.
func MappingsCSV(data []byte) ([]models.MappingRecord, error) {
	rows, err := readCSV(data, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to parse delegation mappings csv: %w", err)
	}
	records := make([]models.MappingRecord, 0, len(rows))
	for i, row := range rows {
		factor, err := strconv.ParseUint(strings.TrimSpace(row[2]), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad factor on mapping line %d: %w", i+1, err)
		}
		records = append(records, models.MappingRecord{
			WalletFrom: row[0],
			WalletTo:   row[1],
			Factor:     uint32(factor),
		})
	}
	return records, nil
}

// Preference decodes a delegation preference document. Documents published
// before totalFactor was introduced omit it; the sum of the entry factors is
// backfilled so downstream factor math always has a denominator.
func Preference(data []byte) (models.Preference, error) {
	var pref models.Preference
	if err := json.Unmarshal(data, &pref); err != nil {
		return models.Preference{}, fmt.Errorf("failed to parse delegation preference: %w", err)
	}
	if pref.TotalFactor == 0 {
		for _, entry := range pref.DelegationPrefs {
			pref.TotalFactor += entry.Factor
		}
	}
	return pref, nil
}

// MintReport decodes a published Add-Own-Mint-Report payload.
func MintReport(data []byte) (models.MintReport, error) {
	var report models.MintReport
	if err := json.Unmarshal(data, &report); err != nil {
		return models.MintReport{}, fmt.Errorf("failed to parse mint report: %w", err)
	}
	return report, nil
}

// readCSV reads every row as data (the published sheets have no header
// line), requiring at least want fields per row. Ragged rows are tolerated
// up to the required width.
func readCSV(data []byte, want int) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) < want {
			return nil, fmt.Errorf("row has %d fields, want %d", len(row), want)
		}
		rows = append(rows, row[:want])
	}
}
