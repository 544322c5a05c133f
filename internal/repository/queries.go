package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/projects"
)

// ErrNotFound marks a read query with an empty result where the caller
// expected data.
var ErrNotFound = errors.New("not found")

// LatestProjectSnapshot returns the newest complete delegation picture of a
// project: per-ticker totals plus every delegator of the latest cycle.
func (s *Store) LatestProjectSnapshot(ctx context.Context, project string) (*models.ProjectSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		with latest as (
			select ticker, max(ts) as ts
			from flp_positions
			where project = ?
			group by ticker
		)
		select p.ts, p.ticker, p.wallet, p.eoa, p.factor, p.amount, p.ar_amount
		from flp_positions p
		inner join latest l on p.ticker = l.ticker and p.ts = l.ts
		where p.project = ?
		order by p.ticker, p.amount desc`, project, project)
	if err != nil {
		return nil, fmt.Errorf("failed to query project snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := models.ProjectSnapshot{Project: project}
	totals := make(map[string]*models.ProjectTotal)
	for rows.Next() {
		var ts time.Time
		var d models.Delegator
		if err := rows.Scan(&ts, &d.Ticker, &d.Wallet, &d.EOA, &d.Factor, &d.Amount, &d.ArAmount); err != nil {
			return nil, fmt.Errorf("failed to scan project snapshot row: %w", err)
		}
		if ts.After(snapshot.TS) {
			snapshot.TS = ts
		}
		total, ok := totals[d.Ticker]
		if !ok {
			total = &models.ProjectTotal{Ticker: d.Ticker}
			totals[d.Ticker] = total
		}
		amount, _ := strconv.ParseFloat(d.Amount, 64)
		arAmount, _ := strconv.ParseFloat(d.ArAmount, 64)
		total.Amount += amount
		total.ArAmount += arAmount
		total.DelegatorsCount++
		snapshot.Delegators = append(snapshot.Delegators, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snapshot.Delegators) == 0 {
		return nil, fmt.Errorf("no delegations found for project %s: %w", project, ErrNotFound)
	}
	tickers := make([]string, 0, len(totals))
	for ticker := range totals {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	for _, ticker := range tickers {
		snapshot.Totals = append(snapshot.Totals, *totals[ticker])
	}
	return &snapshot, nil
}

func (s *Store) identityHistory(ctx context.Context, column, value string) ([]models.IdentityLink, error) {
	rows, err := s.db.QueryContext(ctx,
		"select wallet, eoa, ts from wallet_balances where "+column+" = ? order by ts desc", value)
	if err != nil {
		return nil, fmt.Errorf("failed to query identity history: %w", err)
	}
	defer rows.Close()

	var out []models.IdentityLink
	for rows.Next() {
		var link models.IdentityLink
		var ts time.Time
		if err := rows.Scan(&link.Wallet, &link.EOA, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan identity row: %w", err)
		}
		link.TS = ts.UnixMilli()
		out = append(out, link)
	}
	return out, rows.Err()
}

// WalletIdentityHistory lists every EOA a wallet was observed bridged to.
func (s *Store) WalletIdentityHistory(ctx context.Context, wallet string) ([]models.IdentityLink, error) {
	return s.identityHistory(ctx, "wallet", wallet)
}

// EOAIdentityHistory lists every wallet an EOA was observed bridged to.
func (s *Store) EOAIdentityHistory(ctx context.Context, eoa string) ([]models.IdentityLink, error) {
	return s.identityHistory(ctx, "eoa", eoa)
}

// OracleSnapshotFeed lists a ticker's historical oracle cycles with their
// position totals. Cycles with a zero total are skipped.
func (s *Store) OracleSnapshotFeed(ctx context.Context, ticker string, limit uint64) ([]models.OracleSnapshotFeedEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select o.ts, o.ticker, o.tx_id,
			toFloat64(sum(toDecimal128(if(length(p.amount) = 0, '0', p.amount), 18))) as total,
			uniqExact(p.wallet) as delegators
		from oracle_snapshots o
		left join flp_positions p
		  on p.ticker = o.ticker and p.ts = o.ts
		where o.ticker = ?
		group by o.ts, o.ticker, o.tx_id
		having total > 0
		order by o.ts desc
		limit ?`, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query oracle feed: %w", err)
	}
	defer rows.Close()

	var out []models.OracleSnapshotFeedEntry
	for rows.Next() {
		var entry models.OracleSnapshotFeedEntry
		if err := rows.Scan(&entry.TS, &entry.Ticker, &entry.TxID, &entry.Total, &entry.Delegators); err != nil {
			return nil, fmt.Errorf("failed to scan oracle feed row: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no oracle snapshots found for ticker %s: %w", ticker, ErrNotFound)
	}
	return out, nil
}

// WalletDelegationMappings groups a wallet's historical delegation rows per
// broadcast, newest first.
func (s *Store) WalletDelegationMappings(ctx context.Context, wallet string) ([]models.DelegationMappingHistory, error) {
	rows, err := s.db.QueryContext(ctx, `
		select ts, height, tx_id, wallet_from, wallet_to, factor
		from delegation_mappings
		where wallet_from = ?
		order by height desc`, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegation mappings: %w", err)
	}
	defer rows.Close()

	type key struct {
		height uint32
		txID   string
	}
	grouped := make(map[key]*models.DelegationMappingHistory)
	var order []key
	for rows.Next() {
		var ts time.Time
		var height, factor uint32
		var txID, from, to string
		if err := rows.Scan(&ts, &height, &txID, &from, &to, &factor); err != nil {
			return nil, fmt.Errorf("failed to scan delegation mapping row: %w", err)
		}
		k := key{height: height, txID: txID}
		entry, ok := grouped[k]
		if !ok {
			entry = &models.DelegationMappingHistory{TS: ts, Height: height, TxID: txID, Wallet: from}
			grouped[k] = entry
			order = append(order, k)
		}
		entry.Preferences = append(entry.Preferences, models.DelegationPreferenceOut{WalletTo: to, Factor: factor})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("no delegation mappings found for wallet %s: %w", wallet, ErrNotFound)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].height > order[j].height })
	out := make([]models.DelegationMappingHistory, 0, len(order))
	for _, k := range order {
		out = append(out, *grouped[k])
	}
	return out, nil
}

// LatestDelegationHeights lists the newest indexed mapping broadcasts.
func (s *Store) LatestDelegationHeights(ctx context.Context, limit uint64) ([]models.DelegationHeight, error) {
	rows, err := s.db.QueryContext(ctx, `
		select height, tx_id
		from delegation_mappings
		group by height, tx_id
		order by height desc
		limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delegation heights: %w", err)
	}
	defer rows.Close()

	var out []models.DelegationHeight
	for rows.Next() {
		var h models.DelegationHeight
		if err := rows.Scan(&h.Height, &h.TxID); err != nil {
			return nil, fmt.Errorf("failed to scan delegation height: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no delegation mappings indexed yet: %w", ErrNotFound)
	}
	return out, nil
}

// MultiProjectDelegators lists wallets staking across two or more projects.
func (s *Store) MultiProjectDelegators(ctx context.Context, limit uint64) ([]models.MultiDelegator, error) {
	rows, err := s.db.QueryContext(ctx, `
		select wallet, any(eoa) as eoa, countDistinct(project) as project_count,
			groupUniqArray(project) as projects
		from flp_positions
		group by wallet
		having project_count >= 2
		order by project_count desc
		limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query multi project delegators: %w", err)
	}
	defer rows.Close()

	var out []models.MultiDelegator
	for rows.Next() {
		var d models.MultiDelegator
		if err := rows.Scan(&d.Wallet, &d.EOA, &d.ProjectCount, &d.Projects); err != nil {
			return nil, fmt.Errorf("failed to scan multi delegator: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no multi project delegators found: %w", ErrNotFound)
	}
	return out, nil
}

// ProjectCycleTotals lists a project's per-ticker stake at each oracle
// cycle, optionally restricted to one ticker.
func (s *Store) ProjectCycleTotals(ctx context.Context, project, ticker string, limit uint64) ([]models.ProjectCycleTotal, error) {
	tickerClause := ""
	args := []any{project}
	if ticker != "" {
		tickerClause = " and p.ticker = ?"
		args = append(args, ticker)
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		select o.tx_id, p.ts,
			sumIf(toFloat64(p.amount), p.ticker = 'usds') as usds_total,
			sumIf(toFloat64(p.amount), p.ticker = 'dai') as dai_total,
			sumIf(toFloat64(p.amount), p.ticker = 'steth') as steth_total
		from flp_positions p
		inner join oracle_snapshots o on o.ticker = p.ticker and o.ts = p.ts
		where p.project = ?`+tickerClause+`
		group by o.tx_id, p.ts
		order by p.ts desc
		limit ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle totals: %w", err)
	}
	defer rows.Close()

	var out []models.ProjectCycleTotal
	for rows.Next() {
		var c models.ProjectCycleTotal
		if err := rows.Scan(&c.TxID, &c.TS, &c.USDSTotal, &c.DAITotal, &c.StethTotal); err != nil {
			return nil, fmt.Errorf("failed to scan cycle total: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no cycle totals found for project %s: %w", project, ErrNotFound)
	}
	return out, nil
}

// Tag aggregation columns for the message listing queries. Two parallel
// groupArray columns keep the scan on plain Array(String) types; zipTags
// reassembles the pairs and drops join padding.
const mainnetMessageSelect = `
	select
		m.protocol, m.block_height, m.block_timestamp, m.msg_id, m.owner, m.recipient,
		m.bundled_in, m.data_size, m.ts,
		groupArray(ifNull(t.tag_key, '')) as tag_keys,
		groupArray(ifNull(t.tag_value, '')) as tag_values
	from ao_mainnet_messages m
	left join ao_mainnet_message_tags t
	  on t.protocol = m.protocol and t.block_height = m.block_height and t.msg_id = m.msg_id`

const mainnetMessageGroup = `
	group by m.protocol, m.block_height, m.block_timestamp, m.msg_id, m.owner, m.recipient, m.bundled_in, m.data_size, m.ts`

func scanMainnetMessages(rows *sql.Rows) ([]models.MainnetMessage, error) {
	var out []models.MainnetMessage
	for rows.Next() {
		var m models.MainnetMessage
		var ts time.Time
		var keys, values []string
		if err := rows.Scan(
			&m.Protocol, &m.BlockHeight, &m.BlockTimestamp, &m.MsgID, &m.Owner, &m.Recipient,
			&m.BundledIn, &m.DataSize, &ts, &keys, &values,
		); err != nil {
			return nil, fmt.Errorf("failed to scan mainnet message: %w", err)
		}
		m.IndexedAt = ts.UnixMilli()
		for _, pair := range zipTags(keys, values) {
			m.Tags = append(m.Tags, models.Tag{Key: pair[0], Value: pair[1]})
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentMainnetMessages lists the newest persisted mainnet messages,
// optionally for one protocol variant.
func (s *Store) RecentMainnetMessages(ctx context.Context, protocol string, limit uint64) ([]models.MainnetMessage, error) {
	where := ""
	args := []any{}
	if protocol != "" {
		where = " where m.protocol = ?"
		args = append(args, protocol)
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		mainnetMessageSelect+where+mainnetMessageGroup+`
		order by m.block_height desc, m.msg_id desc
		limit ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()
	return scanMainnetMessages(rows)
}

// BlockMainnetMessages lists the persisted messages of one block.
func (s *Store) BlockMainnetMessages(ctx context.Context, protocol string, height uint32, limit uint64) ([]models.MainnetMessage, error) {
	where := " where m.block_height = ?"
	args := []any{height}
	if protocol != "" {
		where += " and m.protocol = ?"
		args = append(args, protocol)
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		mainnetMessageSelect+where+mainnetMessageGroup+`
		order by m.msg_id
		limit ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query block messages: %w", err)
	}
	defer rows.Close()
	return scanMainnetMessages(rows)
}

// MainnetMessagesByTag lists messages carrying any of the given tag keys
// with the exact value, newest first.
func (s *Store) MainnetMessagesByTag(ctx context.Context, protocol string, tagKeys []string, tagValue string, limit uint64) ([]models.MainnetMessage, error) {
	if len(tagKeys) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(tagKeys)), ", ")
	args := make([]any, 0, len(tagKeys)+3)
	for _, key := range tagKeys {
		args = append(args, key)
	}
	args = append(args, tagValue)
	protocolClause := ""
	if protocol != "" {
		protocolClause = " and m.protocol = ?"
		args = append(args, protocol)
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		select
			m.protocol, m.block_height, m.block_timestamp, m.msg_id, m.owner, m.recipient,
			m.bundled_in, m.data_size, m.ts,
			groupArray(ifNull(t.tag_key, '')) as tag_keys,
			groupArray(ifNull(t.tag_value, '')) as tag_values
		from ao_mainnet_messages m
		inner join ao_mainnet_message_tags filter
		  on filter.protocol = m.protocol and filter.block_height = m.block_height and filter.msg_id = m.msg_id
		left join ao_mainnet_message_tags t
		  on t.protocol = m.protocol and t.block_height = m.block_height and t.msg_id = m.msg_id
		where filter.tag_key in (`+placeholders+`) and filter.tag_value = ?`+protocolClause+
		mainnetMessageGroup+`
		order by m.block_height desc, m.msg_id desc
		limit ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages by tag: %w", err)
	}
	defer rows.Close()
	return scanMainnetMessages(rows)
}

// MainnetIndexingInfo reports per-protocol indexing progress, merging the
// persisted message extent with the newest stream state.
func (s *Store) MainnetIndexingInfo(ctx context.Context) ([]models.MainnetProtocolInfo, error) {
	progress, err := s.db.QueryContext(ctx, `
		select protocol, max(block_height) as block_height, max(ts) as indexed_at
		from ao_mainnet_messages
		group by protocol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexing progress: %w", err)
	}
	defer progress.Close()

	var out []models.MainnetProtocolInfo
	for progress.Next() {
		var info models.MainnetProtocolInfo
		var indexedAt time.Time
		if err := progress.Scan(&info.Protocol, &info.BlockHeight, &indexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan indexing progress: %w", err)
		}
		info.IndexedAt = indexedAt.UnixMilli()
		info.StartHeight = protocolStart(info.Protocol)
		out = append(out, info)
	}
	if err := progress.Err(); err != nil {
		return nil, err
	}

	states, err := s.db.QueryContext(ctx, `
		select protocol, last_complete_height, last_cursor, updated_at
		from ao_mainnet_block_state
		order by protocol, updated_at desc`)
	if err != nil {
		return nil, fmt.Errorf("failed to query stream state: %w", err)
	}
	defer states.Close()

	type streamState struct {
		height    uint32
		cursor    string
		updatedAt time.Time
	}
	seen := make(map[string]streamState)
	for states.Next() {
		var protocol, cursor string
		var height uint32
		var updatedAt time.Time
		if err := states.Scan(&protocol, &height, &cursor, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stream state: %w", err)
		}
		if _, ok := seen[protocol]; !ok {
			seen[protocol] = streamState{height: height, cursor: cursor, updatedAt: updatedAt}
		}
	}
	if err := states.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if state, ok := seen[out[i].Protocol]; ok {
			height := state.height
			cursor := state.cursor
			at := state.updatedAt.UnixMilli()
			out[i].LastProcessedHeight = &height
			out[i].LastCursor = &cursor
			out[i].LastProcessedAt = &at
		}
	}
	return out, nil
}

func protocolStart(protocol string) uint32 {
	switch protocol {
	case string(models.ProtocolA):
		return projects.ProtocolAStart
	case string(models.ProtocolB):
		return projects.ProtocolBStart
	default:
		return 0
	}
}

// ExplorerBlocks lists the newest per-block stats rows of a stats table.
func (s *Store) explorerBlocks(ctx context.Context, table string, limit uint64) ([]models.ExplorerRow, error) {
	rows, err := s.db.QueryContext(ctx,
		"select "+explorerColumns+" from "+table+" order by height desc limit ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s blocks: %w", table, err)
	}
	defer rows.Close()

	var out []models.ExplorerRow
	for rows.Next() {
		var r models.ExplorerRow
		if err := rows.Scan(
			&r.TS, &r.Height, &r.TxCount, &r.EvalCount, &r.TransferCount,
			&r.NewProcessCount, &r.NewModuleCount, &r.ActiveUsers, &r.ActiveProcesses,
			&r.TxCountRolling, &r.ProcessesRolling, &r.ModulesRolling,
		); err != nil {
			return nil, fmt.Errorf("failed to scan %s block: %w", table, err)
		}
		r.Timestamp = uint64(r.TS.Unix())
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestExplorerBlocks lists the newest live stats rows.
func (s *Store) LatestExplorerBlocks(ctx context.Context, limit uint64) ([]models.ExplorerRow, error) {
	return s.explorerBlocks(ctx, "atlas_explorer", limit)
}

// MainnetExplorerBlocks lists the newest derived stats rows.
func (s *Store) MainnetExplorerBlocks(ctx context.Context, limit uint64) ([]models.ExplorerRow, error) {
	return s.explorerBlocks(ctx, "ao_mainnet_explorer", limit)
}

func (s *Store) dailyExplorerStats(ctx context.Context, table string, day time.Time) (*models.ExplorerDayStats, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	row := s.db.QueryRowContext(ctx, `
		select count() as blocks, sum(tx_count) as txs,
			sum(eval_count) as evals, sum(transfer_count) as transfers,
			sum(new_process_count) as new_processes, sum(new_module_count) as new_modules,
			sum(active_users) as active_users, sum(active_processes) as active_processes,
			max(tx_count_rolling) as txs_roll,
			max(processes_rolling) as processes_roll,
			max(modules_rolling) as modules_roll
		from `+table+`
		where toUnixTimestamp(ts) >= ? and toUnixTimestamp(ts) < ?`,
		start.Unix(), end.Unix())
	stats := models.ExplorerDayStats{Day: start.Format("2006-01-02")}
	err := row.Scan(
		&stats.ProcessedBlocks, &stats.Txs, &stats.Evals, &stats.Transfers,
		&stats.NewProcessesOverBlocks, &stats.NewModulesOverBlocks,
		&stats.ActiveUsersOverBlocks, &stats.ActiveProcessesOverBlocks,
		&stats.TxsRoll, &stats.ProcessesRoll, &stats.ModulesRoll,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s day stats: %w", table, err)
	}
	return &stats, nil
}

// DailyExplorerStats aggregates the live stats table over one UTC day.
func (s *Store) DailyExplorerStats(ctx context.Context, day time.Time) (*models.ExplorerDayStats, error) {
	return s.dailyExplorerStats(ctx, "atlas_explorer", day)
}

// MainnetDailyExplorerStats aggregates the derived table over one UTC day.
func (s *Store) MainnetDailyExplorerStats(ctx context.Context, day time.Time) (*models.ExplorerDayStats, error) {
	return s.dailyExplorerStats(ctx, "ao_mainnet_explorer", day)
}

func (s *Store) recentExplorerDays(ctx context.Context, table string, limit uint64) ([]models.ExplorerDayStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		select toInt64(toUnixTimestamp(toStartOfDay(ts))) as day_ts,
			count() as blocks, sum(tx_count) as txs,
			sum(eval_count) as evals, sum(transfer_count) as transfers,
			sum(new_process_count) as new_processes, sum(new_module_count) as new_modules,
			sum(active_users) as active_users, sum(active_processes) as active_processes,
			max(tx_count_rolling) as txs_roll,
			max(processes_rolling) as processes_roll,
			max(modules_rolling) as modules_roll
		from `+table+`
		group by day_ts
		order by day_ts desc
		limit ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s recent days: %w", table, err)
	}
	defer rows.Close()

	var out []models.ExplorerDayStats
	for rows.Next() {
		var dayTS int64
		var stats models.ExplorerDayStats
		if err := rows.Scan(
			&dayTS, &stats.ProcessedBlocks, &stats.Txs, &stats.Evals, &stats.Transfers,
			&stats.NewProcessesOverBlocks, &stats.NewModulesOverBlocks,
			&stats.ActiveUsersOverBlocks, &stats.ActiveProcessesOverBlocks,
			&stats.TxsRoll, &stats.ProcessesRoll, &stats.ModulesRoll,
		); err != nil {
			return nil, fmt.Errorf("failed to scan %s recent day: %w", table, err)
		}
		stats.Day = time.Unix(dayTS, 0).UTC().Format("2006-01-02")
		out = append(out, stats)
	}
	return out, rows.Err()
}

// RecentExplorerDays lists daily aggregates of the live stats table.
func (s *Store) RecentExplorerDays(ctx context.Context, limit uint64) ([]models.ExplorerDayStats, error) {
	return s.recentExplorerDays(ctx, "atlas_explorer", limit)
}

// MainnetRecentExplorerDays lists daily aggregates of the derived table.
func (s *Store) MainnetRecentExplorerDays(ctx context.Context, limit uint64) ([]models.ExplorerDayStats, error) {
	return s.recentExplorerDays(ctx, "ao_mainnet_explorer", limit)
}

// TokenIndexingInfo reports the token stream's progress. arweaveTip may be
// nil when the network info endpoint was unreachable.
func (s *Store) TokenIndexingInfo(ctx context.Context, arweaveTip *uint64) (*models.TokenIndexingInfo, error) {
	row := s.db.QueryRowContext(ctx, `
		select
			count() as total_messages,
			countIf(source = 'transfer') as transfer_messages,
			countIf(source = 'process') as process_messages,
			ifNull(max(block_height), 0) as max_block_height,
			ifNull(max(ts), toDateTime64(0, 3)) as latest_indexed_at
		from ao_token_messages`)
	info := models.TokenIndexingInfo{
		StartHeight: projects.AOTokenStart,
		ArweaveTip:  arweaveTip,
	}
	var maxHeight uint32
	var latest time.Time
	if err := row.Scan(&info.TotalMessages, &info.TransferMessages, &info.ProcessMessages, &maxHeight, &latest); err != nil {
		return nil, fmt.Errorf("failed to query token stats: %w", err)
	}
	if maxHeight != 0 {
		info.MaxBlockHeight = &maxHeight
	}
	if latest.Unix() != 0 {
		at := latest.UnixMilli()
		info.LatestIndexedAt = &at
	}

	state, err := s.LoadTokenCursor(ctx)
	if err != nil {
		return nil, err
	}
	if state != nil {
		height := state.LastCompleteHeight
		at := state.UpdatedAt.UnixMilli()
		info.LastProcessedHeight = &height
		info.LastProcessedAt = &at
		if arweaveTip != nil && *arweaveTip >= uint64(height) {
			lag := *arweaveTip - uint64(height)
			info.BlockLag = &lag
		}
	}
	return &info, nil
}

// TokenFrequency summarizes tag value distributions of the token stream.
func (s *Store) TokenFrequency(ctx context.Context, limit uint64) (*models.TokenFrequencyInfo, error) {
	var info models.TokenFrequencyInfo

	actions, err := s.tokenTagCounts(ctx, "Action", 0)
	if err != nil {
		return nil, err
	}
	for _, c := range actions {
		info.Actions = append(info.Actions, models.TokenActionCount{Action: c.Value, Count: c.Count})
	}
	if info.TopSenders, err = s.tokenTagCounts(ctx, "Sender", limit); err != nil {
		return nil, err
	}
	if info.TopRecipients, err = s.tokenTagCounts(ctx, "Recipient", limit); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Store) tokenTagCounts(ctx context.Context, tagKey string, limit uint64) ([]models.TokenTagCount, error) {
	sqlText := `
		select tag_value, count() as cnt
		from ao_token_message_tags
		where tag_key = ?
		group by tag_value
		order by cnt desc`
	args := []any{tagKey}
	if limit > 0 {
		sqlText += " limit ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s tag counts: %w", tagKey, err)
	}
	defer rows.Close()

	var out []models.TokenTagCount
	for rows.Next() {
		var c models.TokenTagCount
		if err := rows.Scan(&c.Value, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TokenRichlist ranks addresses by credited and debited token volume.
func (s *Store) TokenRichlist(ctx context.Context, limit uint64) (*models.TokenRichlist, error) {
	spenders, err := s.tokenQuantityRanks(ctx, "Sender", "Credit-Notice", limit)
	if err != nil {
		return nil, err
	}
	receivers, err := s.tokenQuantityRanks(ctx, "Recipient", "Debit-Notice", limit)
	if err != nil {
		return nil, err
	}
	return &models.TokenRichlist{TopSpenders: spenders, TopReceivers: receivers}, nil
}

func (s *Store) tokenQuantityRanks(ctx context.Context, addrKey, action string, limit uint64) ([]models.TokenQuantityRank, error) {
	rows, err := s.db.QueryContext(ctx, `
		select addr.tag_value as address,
			toString(sum(toUInt128OrZero(qty.tag_value))) as total_quantity
		from ao_token_message_tags addr
		inner join ao_token_message_tags qty
		  on qty.source = addr.source and qty.block_height = addr.block_height
		 and qty.msg_id = addr.msg_id
		inner join ao_token_message_tags action
		  on action.source = addr.source and action.block_height = addr.block_height
		 and action.msg_id = addr.msg_id
		where addr.tag_key = ?
		  and qty.tag_key = 'Quantity'
		  and action.tag_key = 'Action'
		  and action.tag_value = ?
		group by addr.tag_value
		order by sum(toUInt128OrZero(qty.tag_value)) desc
		limit ?`, addrKey, action, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query richlist by %s: %w", addrKey, err)
	}
	defer rows.Close()

	var out []models.TokenQuantityRank
	for rows.Next() {
		var rank models.TokenQuantityRank
		var raw string
		if err := rows.Scan(&rank.Address, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan richlist row: %w", err)
		}
		rank.TotalQuantity = FormatQuantityHuman(raw)
		out = append(out, rank)
	}
	return out, rows.Err()
}

// FormatQuantityHuman renders a raw 12-decimal token quantity as a human
// readable decimal string with trailing zeros trimmed.
func FormatQuantityHuman(raw string) string {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "0"
	}
	scale := big.NewInt(1_000_000_000_000)
	whole, frac := new(big.Int).QuoRem(value, scale, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := fmt.Sprintf("%012s", frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr
}

const tokenMessageSelect = `
	select
		m.source, m.block_height, m.block_timestamp, m.msg_id, m.owner, m.recipient,
		m.bundled_in, m.data_size, m.ts,
		groupArray(ifNull(t.tag_key, '')) as tag_keys,
		groupArray(ifNull(t.tag_value, '')) as tag_values
	from ao_token_messages m
	left join ao_token_message_tags t
	  on t.source = m.source and t.block_height = m.block_height and t.msg_id = m.msg_id`

const tokenMessageGroup = `
	group by m.source, m.block_height, m.block_timestamp, m.msg_id, m.owner, m.recipient, m.bundled_in, m.data_size, m.ts`

func scanTokenMessages(rows *sql.Rows) ([]models.TokenMessage, error) {
	var out []models.TokenMessage
	for rows.Next() {
		var m models.TokenMessage
		var ts time.Time
		var keys, values []string
		if err := rows.Scan(
			&m.Source, &m.BlockHeight, &m.BlockTimestamp, &m.MsgID, &m.Owner, &m.Recipient,
			&m.BundledIn, &m.DataSize, &ts, &keys, &values,
		); err != nil {
			return nil, fmt.Errorf("failed to scan token message: %w", err)
		}
		m.IndexedAt = ts.UnixMilli()
		for _, pair := range zipTags(keys, values) {
			m.Tags = append(m.Tags, models.Tag{Key: pair[0], Value: pair[1]})
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TokenMessages lists persisted token messages under an optional set of
// tag and range predicates.
func (s *Store) TokenMessages(ctx context.Context, f models.TokenMessageFilter) ([]models.TokenMessage, error) {
	var joins []string
	var wheres []string
	var args []any

	if f.Action != "" {
		joins = append(joins, `
		inner join ao_token_message_tags action_filter
		  on action_filter.source = m.source and action_filter.block_height = m.block_height
		 and action_filter.msg_id = m.msg_id and action_filter.tag_key = 'Action'
		 and lowerUTF8(action_filter.tag_value) = lowerUTF8(?)`)
		args = append(args, f.Action)
	}
	if f.Recipient != "" {
		joins = append(joins, `
		inner join ao_token_message_tags recipient_filter
		  on recipient_filter.source = m.source and recipient_filter.block_height = m.block_height
		 and recipient_filter.msg_id = m.msg_id and recipient_filter.tag_key = 'Recipient'
		 and recipient_filter.tag_value = ?`)
		args = append(args, f.Recipient)
	}
	if f.Sender != "" {
		joins = append(joins, `
		inner join ao_token_message_tags sender_filter
		  on sender_filter.source = m.source and sender_filter.block_height = m.block_height
		 and sender_filter.msg_id = m.msg_id and sender_filter.tag_key = 'Sender'
		 and sender_filter.tag_value = ?`)
		args = append(args, f.Sender)
	}
	if f.MinQty != "" || f.MaxQty != "" {
		joins = append(joins, `
		inner join ao_token_message_tags qty_filter
		  on qty_filter.source = m.source and qty_filter.block_height = m.block_height
		 and qty_filter.msg_id = m.msg_id and qty_filter.tag_key = 'Quantity'`)
	}
	if f.MinQty != "" {
		wheres = append(wheres, "toUInt128OrZero(qty_filter.tag_value) >= toUInt128OrZero(?)")
		args = append(args, f.MinQty)
	}
	if f.MaxQty != "" {
		wheres = append(wheres, "toUInt128OrZero(qty_filter.tag_value) <= toUInt128OrZero(?)")
		args = append(args, f.MaxQty)
	}
	if f.Source != "" {
		wheres = append(wheres, "m.source = ?")
		args = append(args, f.Source)
	}
	if f.FromTS != nil {
		wheres = append(wheres, "m.block_timestamp >= ?")
		args = append(args, *f.FromTS)
	}
	if f.ToTS != nil {
		wheres = append(wheres, "m.block_timestamp <= ?")
		args = append(args, *f.ToTS)
	}
	if f.BlockMin != nil {
		wheres = append(wheres, "m.block_height >= ?")
		args = append(args, *f.BlockMin)
	}
	if f.BlockMax != nil {
		wheres = append(wheres, "m.block_height <= ?")
		args = append(args, *f.BlockMax)
	}

	sqlText := tokenMessageSelect + strings.Join(joins, "")
	if len(wheres) > 0 {
		sqlText += "\n\twhere " + strings.Join(wheres, " and ")
	}
	dir := "desc"
	if f.Ascending {
		dir = "asc"
	}
	sqlText += tokenMessageGroup + fmt.Sprintf(`
	order by m.block_height %s, m.msg_id %s
	limit ? offset ?`, dir, dir)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query token messages: %w", err)
	}
	defer rows.Close()
	return scanTokenMessages(rows)
}

// TokenMessageByID lists every persisted copy of one token message.
func (s *Store) TokenMessageByID(ctx context.Context, msgID string) ([]models.TokenMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		tokenMessageSelect+`
		where m.msg_id = ?`+tokenMessageGroup+`
		order by m.block_height desc, m.msg_id desc`, msgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query token message by id: %w", err)
	}
	defer rows.Close()
	return scanTokenMessages(rows)
}

// TokenMessagesByTag lists token messages carrying an exact tag pair.
func (s *Store) TokenMessagesByTag(ctx context.Context, source, tagKey, tagValue string, limit uint64) ([]models.TokenMessage, error) {
	sourceClause := ""
	args := []any{tagKey, tagValue}
	if source != "" {
		sourceClause = " and m.source = ?"
		args = append(args, source)
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, `
		select
			m.source, m.block_height, m.block_timestamp, m.msg_id, m.owner, m.recipient,
			m.bundled_in, m.data_size, m.ts,
			groupArray(ifNull(t.tag_key, '')) as tag_keys,
			groupArray(ifNull(t.tag_value, '')) as tag_values
		from ao_token_messages m
		inner join ao_token_message_tags filter
		  on filter.source = m.source and filter.block_height = m.block_height and filter.msg_id = m.msg_id
		left join ao_token_message_tags t
		  on t.source = m.source and t.block_height = m.block_height and t.msg_id = m.msg_id
		where filter.tag_key = ? and filter.tag_value = ?`+sourceClause+
		tokenMessageGroup+`
		order by m.block_height desc, m.msg_id desc
		limit ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query token messages by tag: %w", err)
	}
	defer rows.Close()
	return scanTokenMessages(rows)
}
