package indexer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/permaweb/atlas/internal/config"
	"github.com/permaweb/atlas/internal/delegation"
	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/parse"
	"github.com/permaweb/atlas/internal/projects"
)

// oracleDecimals is the base-unit scale of every bridged asset the oracles
// publish.
const oracleDecimals = 18

// SnapshotStore is the persistence slice the snapshot pipeline writes
// through.
type SnapshotStore interface {
	InsertOracles(ctx context.Context, rows []models.OracleSnapshotRow) error
	InsertBalances(ctx context.Context, rows []models.WalletBalanceRow) error
	InsertDelegations(ctx context.Context, rows []models.WalletDelegationRow) error
	InsertPositions(ctx context.Context, rows []models.PositionRow) error
	InsertDelegationMappings(ctx context.Context, rows []models.DelegationMappingRow) error
	HasOracle(ctx context.Context, ticker, txID string) (bool, error)
	HasDelegationMapping(ctx context.Context, txID string) (bool, error)
}

// SnapshotGateway is the gateway slice the snapshot pipeline consumes.
type SnapshotGateway interface {
	Download(ctx context.Context, txID string) ([]byte, error)
	NativeBalance(ctx context.Context, addr string) (float64, error)
	LatestOracleSnapshot(ctx context.Context, ticker string) (string, error)
	LatestSetDelegations(ctx context.Context, addr string) ([]string, error)
	DelegationPreferenceTx(ctx context.Context, batchID string) (string, error)
	LatestDelegationMappings(ctx context.Context, first int, cursor string) (models.MappingPage, error)
}

// SnapshotPipeline polls the ticker oracles for fresh balance sheets and
// materializes each new one into balances, resolved delegations and
// per-project positions. Cycle failures are logged and the next interval
// runs regardless.
type SnapshotPipeline struct {
	gw     SnapshotGateway
	store  SnapshotStore
	cfg    config.SnapshotConfig
	logger *slog.Logger
}

// NewSnapshotPipeline builds the oracle snapshot pipeline.
func NewSnapshotPipeline(gw SnapshotGateway, store SnapshotStore, cfg config.SnapshotConfig, logger *slog.Logger) *SnapshotPipeline {
	return &SnapshotPipeline{
		gw:     gw,
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("stream", "snapshots")),
	}
}

// Run executes one cycle immediately, then once per refresh interval.
func (p *SnapshotPipeline) Run(ctx context.Context) error {
	p.cycle(ctx)
	ticker := time.NewTicker(p.cfg.RefreshInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *SnapshotPipeline) cycle(ctx context.Context) {
	if err := p.indexDelegationMappings(ctx); err != nil {
		p.logger.Error("delegation mapping indexing failed", slog.Any("error", err))
	}
	for _, ticker := range p.cfg.TickerList() {
		if err := ctx.Err(); err != nil {
			return
		}
		fresh, err := p.snapshotTicker(ctx, ticker)
		switch {
		case err != nil:
			snapshotCycles.WithLabelValues(ticker, "error").Inc()
			p.logger.Error("snapshot cycle failed",
				slog.String("ticker", ticker), slog.Any("error", err))
		case fresh:
			snapshotCycles.WithLabelValues(ticker, "ok").Inc()
		default:
			snapshotCycles.WithLabelValues(ticker, "skipped").Inc()
		}
	}
}

// indexDelegationMappings records the newest Delegation-Mappings broadcast
// when it has not been indexed yet.
func (p *SnapshotPipeline) indexDelegationMappings(ctx context.Context) error {
	page, err := p.gw.LatestDelegationMappings(ctx, 1, "")
	if err != nil {
		return err
	}
	ts := time.Now().UTC()
	for _, meta := range page.Mappings {
		seen, err := p.store.HasDelegationMapping(ctx, meta.TxID)
		if err != nil {
			return err
		}
		if seen {
			continue
		}
		data, err := p.gw.Download(ctx, meta.TxID)
		if err != nil {
			p.logger.Error("mapping download failed",
				slog.String("tx_id", meta.TxID), slog.Any("error", err))
			continue
		}
		records, err := parse.MappingsCSV(data)
		if err != nil {
			p.logger.Error("mapping parse failed",
				slog.String("tx_id", meta.TxID), slog.Any("error", err))
			continue
		}
		rows := make([]models.DelegationMappingRow, 0, len(records))
		for _, rec := range records {
			rows = append(rows, models.DelegationMappingRow{
				TS:         ts,
				Height:     meta.Height,
				TxID:       meta.TxID,
				WalletFrom: rec.WalletFrom,
				WalletTo:   rec.WalletTo,
				Factor:     rec.Factor,
			})
		}
		if err := p.store.InsertDelegationMappings(ctx, rows); err != nil {
			return err
		}
		p.logger.Info("delegation mapping indexed",
			slog.String("tx_id", meta.TxID), slog.Int("rows", len(rows)))
	}
	return nil
}

// walletResolution is one holder's resolved state for a cycle.
type walletResolution struct {
	record models.BalanceRecord
	pref   models.Preference
	ar     float64
}

// snapshotTicker runs one ticker's cycle. It reports false when the newest
// oracle message was already processed.
func (p *SnapshotPipeline) snapshotTicker(ctx context.Context, ticker string) (bool, error) {
	txID, err := p.gw.LatestOracleSnapshot(ctx, ticker)
	if err != nil {
		return false, err
	}
	seen, err := p.store.HasOracle(ctx, ticker, txID)
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}
	ts := time.Now().UTC()
	if err := p.store.InsertOracles(ctx, []models.OracleSnapshotRow{{TS: ts, Ticker: ticker, TxID: txID}}); err != nil {
		return false, err
	}
	data, err := p.gw.Download(ctx, txID)
	if err != nil {
		return false, err
	}
	records, err := parse.BalancesCSV(data)
	if err != nil {
		return false, err
	}
	p.logger.Info("oracle snapshot found",
		slog.String("ticker", ticker), slog.String("tx_id", txID), slog.Int("holders", len(records)))

	resolutions := p.resolveHolders(ctx, records)
	if err := ctx.Err(); err != nil {
		return false, err
	}

	balanceRows := make([]models.WalletBalanceRow, 0, len(resolutions))
	delegationRows := make([]models.WalletDelegationRow, 0, len(resolutions))
	var positionRows []models.PositionRow
	for _, res := range resolutions {
		amount := parseAmount(res.record.Amount)
		arBalance := decimal.NewFromFloat(res.ar)
		balanceRows = append(balanceRows, models.WalletBalanceRow{
			TS:        ts,
			Ticker:    ticker,
			Wallet:    res.record.ArAddress,
			EOA:       res.record.EOA,
			Amount:    amount.String(),
			ArBalance: arBalance.String(),
			TxID:      txID,
		})
		payload, err := json.Marshal(res.pref)
		if err != nil {
			return false, err
		}
		delegationRows = append(delegationRows, models.WalletDelegationRow{
			TS:      ts,
			Wallet:  res.record.ArAddress,
			Payload: string(payload),
		})
		positionRows = append(positionRows, apportion(ts, ticker, res, amount, arBalance)...)
	}
	if err := p.store.InsertBalances(ctx, balanceRows); err != nil {
		return false, err
	}
	if err := p.store.InsertDelegations(ctx, delegationRows); err != nil {
		return false, err
	}
	if err := p.store.InsertPositions(ctx, positionRows); err != nil {
		return false, err
	}
	p.logger.Info("snapshot stored",
		slog.String("ticker", ticker),
		slog.Int("balances", len(balanceRows)),
		slog.Int("positions", len(positionRows)))
	return true, nil
}

// resolveHolders fans out the per-wallet gateway lookups. Individual
// failures degrade to the defaults (PI preference, zero AR) rather than
// failing the cycle.
func (p *SnapshotPipeline) resolveHolders(ctx context.Context, records []models.BalanceRecord) []walletResolution {
	limit := p.cfg.Concurrency
	if limit <= 0 {
		limit = 16
	}
	resolutions := make([]walletResolution, len(records))
	var group errgroup.Group
	group.SetLimit(limit)
	for i, record := range records {
		group.Go(func() error {
			pref := p.resolveDelegations(ctx, record.ArAddress)
			ar, err := p.gw.NativeBalance(ctx, record.ArAddress)
			if err != nil {
				ar = 0
			}
			resolutions[i] = walletResolution{record: record, pref: pref, ar: ar}
			return nil
		})
	}
	group.Wait()
	return resolutions
}

// resolveDelegations resolves one holder's effective preference through the
// shared two-hop lookup.
func (p *SnapshotPipeline) resolveDelegations(ctx context.Context, addr string) models.Preference {
	return delegation.Resolve(ctx, p.gw, addr)
}

// apportion splits one wallet's stake across its delegated FLP projects by
// factor. Targets outside the project registry and all-zero slices are
// dropped.
func apportion(ts time.Time, ticker string, res walletResolution, amount, arBalance decimal.Decimal) []models.PositionRow {
	var rows []models.PositionRow
	for _, entry := range res.pref.DelegationPrefs {
		if !projects.IsFLPProject(entry.WalletTo) {
			continue
		}
		factor := decimal.NewFromInt(int64(entry.Factor)).Div(maxFactorDec)
		delegated := amount.Mul(factor)
		arDelegated := arBalance.Mul(factor)
		if delegated.IsZero() && arDelegated.IsZero() {
			continue
		}
		rows = append(rows, models.PositionRow{
			TS:       ts,
			Ticker:   ticker,
			Wallet:   res.record.ArAddress,
			EOA:      res.record.EOA,
			Project:  entry.WalletTo,
			Factor:   entry.Factor,
			Amount:   delegated.String(),
			ArAmount: arDelegated.String(),
		})
	}
	return rows
}

var maxFactorDec = decimal.NewFromInt(int64(projects.MaxFactor))

// parseAmount scales a raw oracle amount to human units. Unreadable values
// degrade to zero.
func parseAmount(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d.Shift(-oracleDecimals)
}
