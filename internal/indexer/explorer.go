package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/permaweb/atlas/internal/models"
)

const metricsBatchSize = 512

// ExplorerStore is the persistence slice the materializer works through.
type ExplorerStore interface {
	TruncateMainnetExplorer(ctx context.Context) error
	FetchBlockMetrics(ctx context.Context, afterHeight uint32, limit uint64) ([]models.BlockMetrics, error)
	InsertMainnetExplorerRows(ctx context.Context, rows []models.ExplorerRow) error
	LatestMainnetExplorerRow(ctx context.Context) (*models.ExplorerRow, error)
}

// ExplorerMaterializer derives the per-block explorer table from the
// persisted mainnet messages: a full rebuild at startup, then a tail that
// follows the message streams.
type ExplorerMaterializer struct {
	store  ExplorerStore
	logger *slog.Logger

	idleDelay time.Duration
}

// NewExplorerMaterializer builds the derived-stats materializer.
func NewExplorerMaterializer(store ExplorerStore, logger *slog.Logger) *ExplorerMaterializer {
	return &ExplorerMaterializer{
		store:     store,
		logger:    logger.With(slog.String("stream", "mainnet-explorer")),
		idleDelay: 120 * time.Second,
	}
}

// Rebuild truncates the derived table and re-derives it from height zero.
func (m *ExplorerMaterializer) Rebuild(ctx context.Context) error {
	m.logger.Info("rebuilding derived explorer table")
	if err := m.store.TruncateMainnetExplorer(ctx); err != nil {
		return err
	}
	var lastHeight uint32
	var txRoll, procRoll, modRoll uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		metrics, err := m.store.FetchBlockMetrics(ctx, lastHeight, metricsBatchSize)
		if err != nil {
			return err
		}
		if len(metrics) == 0 {
			break
		}
		rows := buildExplorerRows(metrics, &lastHeight, &txRoll, &procRoll, &modRoll)
		if err := m.store.InsertMainnetExplorerRows(ctx, rows); err != nil {
			return err
		}
		m.logger.Info("derived explorer indexed", slog.Uint64("height", uint64(lastHeight)))
	}
	m.logger.Info("derived explorer rebuild complete")
	return nil
}

// Tail follows the message streams, extending the derived table as new
// blocks land. Rolling totals seed from the newest derived row.
func (m *ExplorerMaterializer) Tail(ctx context.Context) error {
	last, err := m.store.LatestMainnetExplorerRow(ctx)
	if err != nil {
		return err
	}
	var lastHeight uint32
	var txRoll, procRoll, modRoll uint64
	if last != nil {
		lastHeight = uint32(last.Height)
		txRoll = last.TxCountRolling
		procRoll = last.ProcessesRolling
		modRoll = last.ModulesRolling
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		metrics, err := m.store.FetchBlockMetrics(ctx, lastHeight, metricsBatchSize)
		if err != nil {
			return err
		}
		if len(metrics) == 0 {
			if err := sleepCtx(ctx, m.idleDelay); err != nil {
				return err
			}
			continue
		}
		rows := buildExplorerRows(metrics, &lastHeight, &txRoll, &procRoll, &modRoll)
		if err := m.store.InsertMainnetExplorerRows(ctx, rows); err != nil {
			return err
		}
	}
}

func buildExplorerRows(metrics []models.BlockMetrics, lastHeight *uint32, txRoll, procRoll, modRoll *uint64) []models.ExplorerRow {
	rows := make([]models.ExplorerRow, 0, len(metrics))
	for _, metric := range metrics {
		*lastHeight = uint32(metric.Height)
		*txRoll += metric.TxCount
		*procRoll += metric.NewProcessCount
		*modRoll += metric.NewModuleCount
		rows = append(rows, models.ExplorerRow{
			TS: metric.TS,
			BlockStats: models.BlockStats{
				Height:           metric.Height,
				Timestamp:        uint64(metric.TS.Unix()),
				TxCount:          metric.TxCount,
				EvalCount:        metric.EvalCount,
				TransferCount:    metric.TransferCount,
				NewProcessCount:  metric.NewProcessCount,
				NewModuleCount:   metric.NewModuleCount,
				ActiveUsers:      metric.ActiveUsers,
				ActiveProcesses:  metric.ActiveProcesses,
				TxCountRolling:   *txRoll,
				ProcessesRolling: *procRoll,
				ModulesRolling:   *modRoll,
			},
		})
	}
	return rows
}
