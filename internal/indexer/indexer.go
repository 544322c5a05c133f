// Package indexer contains the continuous on-chain workers: the protocol
// message streams, the AO token stream, the global stats indexer, the
// oracle snapshot pipeline and the explorer materializer.
package indexer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/permaweb/atlas/internal/config"
	"github.com/permaweb/atlas/internal/gateway"
	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/projects"
	"github.com/permaweb/atlas/internal/repository"
)

// arweaveTipSafeGap keeps workers behind the network tip as a weak reorg
// defense.
const arweaveTipSafeGap = 3

// Gateway is the slice of the Ledger gateway client the workers consume.
type Gateway interface {
	ScanBlockMessages(ctx context.Context, variant models.Protocol, height uint32, cursor string) (models.MessagePage, error)
	ScanTokenMessages(ctx context.Context, kind gateway.TokenQuery, height uint32, cursor string) (models.MessagePage, error)
	ScanStatsBlock(ctx context.Context, height uint32) ([]models.StatsTx, error)
	TipHeight(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, height uint64) (uint64, error)
	Download(ctx context.Context, txID string) ([]byte, error)
	NativeBalance(ctx context.Context, addr string) (float64, error)
	LatestOracleSnapshot(ctx context.Context, ticker string) (string, error)
	LatestSetDelegations(ctx context.Context, addr string) ([]string, error)
	DelegationPreferenceTx(ctx context.Context, batchID string) (string, error)
	LatestDelegationMappings(ctx context.Context, first int, cursor string) (models.MappingPage, error)
}

// Supervisor owns the worker set and fans it out per the configured
// toggles. Worker failures are logged; sibling workers keep running.
type Supervisor struct {
	cfg    config.Config
	gw     Gateway
	store  *repository.Store
	logger *slog.Logger
}

// NewSupervisor wires the worker set.
func NewSupervisor(cfg config.Config, gw Gateway, store *repository.Store, logger *slog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, gw: gw, store: store, logger: logger}
}

// Run starts every enabled worker and blocks until the context ends. The
// explorer rebuild runs to completion before its tail starts so rolling
// totals never double-count.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.Indexers.PI {
		stats := NewStatsIndexer(s.gw, s.store, s.logger)
		go s.supervise(ctx, "stats", stats.Run)
	}
	if s.cfg.Indexers.Mainnet {
		for _, stream := range []struct {
			variant models.Protocol
			start   uint32
		}{
			{models.ProtocolA, projects.ProtocolAStart},
			{models.ProtocolB, projects.ProtocolBStart},
		} {
			worker := NewMainnetWorker(s.gw, s.store, stream.variant, stream.start, s.logger)
			go s.supervise(ctx, "mainnet-"+string(stream.variant), worker.Run)
		}
	}
	if s.cfg.Indexers.AO {
		worker := NewTokenWorker(s.gw, s.store, projects.AOTokenStart, s.logger)
		go s.supervise(ctx, "ao-token", worker.Run)
	}
	if s.cfg.Indexers.Explorer {
		materializer := NewExplorerMaterializer(s.store, s.logger)
		go s.supervise(ctx, "mainnet-explorer", func(ctx context.Context) error {
			if err := materializer.Rebuild(ctx); err != nil {
				return err
			}
			return materializer.Tail(ctx)
		})
	}
	if s.cfg.Indexers.FLP {
		pipeline := NewSnapshotPipeline(s.gw, s.store, s.cfg.Snapshot, s.logger)
		go s.supervise(ctx, "snapshots", pipeline.Run)
	}
	s.logger.Info("indexer ready", slog.Any("tickers", s.cfg.Snapshot.TickerList()))
	<-ctx.Done()
	return ctx.Err()
}

func (s *Supervisor) supervise(ctx context.Context, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("worker stopped", slog.String("worker", name), slog.Any("error", err))
	}
}

// sleepCtx sleeps for d or until the context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isRateLimit(err error) bool {
	return gateway.StatusCode(err) == 429
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out")
}

// isTransient covers the retry-in-place cases: transient server errors,
// a gateway that momentarily lost the block, or a timeout.
func isTransient(err error) bool {
	code := gateway.StatusCode(err)
	return code >= 500 || code == 404 || isTimeout(err)
}
