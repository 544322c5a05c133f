package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/permaweb/atlas/internal/models"
)

// statsCheckpoint is the last aggregate published by the on-chain stats
// process before this indexer took over; rolling totals continue from it
// when the stats table is empty.
var statsCheckpoint = models.BlockStats{
	Height:           1802758,
	Timestamp:        1764114408,
	TxCount:          125657,
	EvalCount:        69,
	TransferCount:    2902,
	NewProcessCount:  3,
	NewModuleCount:   0,
	ActiveUsers:      87,
	ActiveProcesses:  883,
	TxCountRolling:   2771411066,
	ProcessesRolling: 540463,
	ModulesRolling:   10157,
}

// StatsStore is the persistence slice the stats indexer writes through.
type StatsStore interface {
	LatestExplorerStats(ctx context.Context) (*models.ExplorerRow, error)
	InsertExplorerStats(ctx context.Context, rows []models.ExplorerRow) error
}

// StatsGateway is the gateway slice the stats indexer consumes.
type StatsGateway interface {
	ScanStatsBlock(ctx context.Context, height uint32) ([]models.StatsTx, error)
	TipHeight(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, height uint64) (uint64, error)
}

// StatsIndexer aggregates global per-block protocol activity, carrying
// rolling totals forward block by block.
type StatsIndexer struct {
	gw     StatsGateway
	store  StatsStore
	logger *slog.Logger

	idleDelay time.Duration
}

// NewStatsIndexer builds the global stats indexer.
func NewStatsIndexer(gw StatsGateway, store StatsStore, logger *slog.Logger) *StatsIndexer {
	return &StatsIndexer{
		gw:        gw,
		store:     store,
		logger:    logger.With(slog.String("stream", "stats")),
		idleDelay: 10 * time.Second,
	}
}

// Run walks blocks from the seed to the tip, then idles and follows.
func (s *StatsIndexer) Run(ctx context.Context) error {
	last, err := s.seed(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("stats indexer starting", slog.Uint64("height", last.Height+1))
	height := last.Height + 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		tip, err := s.gw.TipHeight(ctx)
		if err != nil {
			s.logger.Error("tip fetch failed", slog.Any("error", err))
			if err := sleepCtx(ctx, s.idleDelay); err != nil {
				return err
			}
			continue
		}
		for height <= tip {
			if err := ctx.Err(); err != nil {
				return err
			}
			stats, err := s.buildBlockStats(ctx, height, last)
			if err != nil {
				return err
			}
			row := models.ExplorerRow{
				TS:         time.Unix(int64(stats.Timestamp), 0).UTC(),
				BlockStats: stats,
			}
			if err := s.store.InsertExplorerStats(ctx, []models.ExplorerRow{row}); err != nil {
				return err
			}
			blocksIndexed.WithLabelValues("stats").Inc()
			last = stats
			height++
		}
		if err := sleepCtx(ctx, s.idleDelay); err != nil {
			return err
		}
	}
}

// seed resumes from the newest persisted stats row, or from the on-chain
// checkpoint when the table is empty.
func (s *StatsIndexer) seed(ctx context.Context) (models.BlockStats, error) {
	row, err := s.store.LatestExplorerStats(ctx)
	if err != nil {
		return models.BlockStats{}, err
	}
	if row != nil {
		return row.BlockStats, nil
	}
	return statsCheckpoint, nil
}

// buildBlockStats aggregates one block's protocol transactions. A block
// with none still produces a row: zero counters, the block's timestamp
// from the network, and the rolling totals carried unchanged.
func (s *StatsIndexer) buildBlockStats(ctx context.Context, height uint64, last models.BlockStats) (models.BlockStats, error) {
	txs, err := s.gw.ScanStatsBlock(ctx, uint32(height))
	if err != nil {
		return models.BlockStats{}, err
	}
	stats := aggregateBlock(height, txs)
	if stats.TxCount == 0 {
		ts, err := s.gw.BlockTimestamp(ctx, height)
		if err != nil {
			return models.BlockStats{}, err
		}
		stats.Timestamp = ts
	} else if stats.Timestamp == 0 {
		ts, err := s.gw.BlockTimestamp(ctx, height)
		if err != nil {
			return models.BlockStats{}, err
		}
		stats.Timestamp = ts
	}
	stats.TxCountRolling = last.TxCountRolling + stats.TxCount
	stats.ProcessesRolling = last.ProcessesRolling + stats.NewProcessCount
	stats.ModulesRolling = last.ModulesRolling + stats.NewModuleCount
	return stats, nil
}

// aggregateBlock derives one block's counters from its classified
// transactions. Transactions from other heights (gateways occasionally
// leak neighbors into a block-bounded query) are ignored.
func aggregateBlock(height uint64, txs []models.StatsTx) models.BlockStats {
	stats := models.BlockStats{Height: height}
	users := make(map[string]struct{})
	processes := make(map[string]struct{})
	for _, tx := range txs {
		if tx.BlockHeight != height {
			continue
		}
		if stats.Timestamp == 0 && tx.BlockTimestamp > 0 {
			stats.Timestamp = uint64(tx.BlockTimestamp)
		}
		stats.TxCount++
		switch tx.Action {
		case "Eval":
			stats.EvalCount++
		case "Transfer":
			stats.TransferCount++
		}
		switch tx.Type {
		case "Process":
			stats.NewProcessCount++
		case "Module":
			stats.NewModuleCount++
		}
		users[tx.Owner] = struct{}{}
		if tx.Process != "" {
			processes[tx.Process] = struct{}{}
		}
	}
	stats.ActiveUsers = uint64(len(users))
	stats.ActiveProcesses = uint64(len(processes))
	return stats
}
