package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permaweb/atlas/internal/models"
)

type fakeStatsGW struct {
	tip       uint64
	blocks    map[uint32][]models.StatsTx
	ts        map[uint64]uint64
	tsFetches []uint64
}

func (g *fakeStatsGW) ScanStatsBlock(_ context.Context, height uint32) ([]models.StatsTx, error) {
	return g.blocks[height], nil
}

func (g *fakeStatsGW) TipHeight(context.Context) (uint64, error) {
	return g.tip, nil
}

func (g *fakeStatsGW) BlockTimestamp(_ context.Context, height uint64) (uint64, error) {
	g.tsFetches = append(g.tsFetches, height)
	return g.ts[height], nil
}

type fakeStatsStore struct {
	latest   *models.ExplorerRow
	inserted []models.ExplorerRow
	stopAt   int
	cancel   context.CancelFunc
}

func (s *fakeStatsStore) LatestExplorerStats(context.Context) (*models.ExplorerRow, error) {
	return s.latest, nil
}

func (s *fakeStatsStore) InsertExplorerStats(_ context.Context, rows []models.ExplorerRow) error {
	s.inserted = append(s.inserted, rows...)
	if s.cancel != nil && len(s.inserted) >= s.stopAt {
		s.cancel()
	}
	return nil
}

func statsTx(id string, height uint64, owner, action, typ, process string) models.StatsTx {
	return models.StatsTx{
		ID:             id,
		BlockHeight:    height,
		BlockTimestamp: 1764200000,
		Owner:          owner,
		Action:         action,
		Type:           typ,
		Process:        process,
	}
}

func TestAggregateBlockClassifiesTransactions(t *testing.T) {
	txs := []models.StatsTx{
		statsTx("t1", 1802759, "alice", "Eval", "Message", "proc-1"),
		statsTx("t2", 1802759, "alice", "Transfer", "Message", "proc-2"),
		statsTx("t3", 1802759, "bob", "", "Process", "proc-2"),
		statsTx("t4", 1802759, "carol", "", "Module", ""),
		// Neighbor leak from a block-bounded gateway query.
		statsTx("t5", 1802760, "dave", "Eval", "Message", "proc-9"),
		// Classification is exact-case.
		statsTx("t6", 1802759, "alice", "eval", "process", "proc-1"),
	}
	stats := aggregateBlock(1802759, txs)

	assert.Equal(t, uint64(5), stats.TxCount)
	assert.Equal(t, uint64(1), stats.EvalCount)
	assert.Equal(t, uint64(1), stats.TransferCount)
	assert.Equal(t, uint64(1), stats.NewProcessCount)
	assert.Equal(t, uint64(1), stats.NewModuleCount)
	assert.Equal(t, uint64(3), stats.ActiveUsers)
	assert.Equal(t, uint64(2), stats.ActiveProcesses)
	assert.Equal(t, uint64(1764200000), stats.Timestamp)
}

func TestBuildBlockStatsCarriesRollingTotals(t *testing.T) {
	gw := &fakeStatsGW{
		blocks: map[uint32][]models.StatsTx{
			1802759: {
				statsTx("t1", 1802759, "alice", "Transfer", "Message", "proc-1"),
				statsTx("t2", 1802759, "bob", "", "Process", "proc-1"),
			},
		},
	}
	s := NewStatsIndexer(gw, &fakeStatsStore{}, testLogger())

	stats, err := s.buildBlockStats(context.Background(), 1802759, statsCheckpoint)
	require.NoError(t, err)
	assert.Equal(t, statsCheckpoint.TxCountRolling+2, stats.TxCountRolling)
	assert.Equal(t, statsCheckpoint.ProcessesRolling+1, stats.ProcessesRolling)
	assert.Equal(t, statsCheckpoint.ModulesRolling, stats.ModulesRolling)
	assert.Empty(t, gw.tsFetches)
}

func TestBuildBlockStatsEmptyBlockFetchesTimestamp(t *testing.T) {
	gw := &fakeStatsGW{
		ts: map[uint64]uint64{1802759: 1764200123},
	}
	s := NewStatsIndexer(gw, &fakeStatsStore{}, testLogger())

	stats, err := s.buildBlockStats(context.Background(), 1802759, statsCheckpoint)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1802759}, gw.tsFetches)
	assert.Equal(t, uint64(1764200123), stats.Timestamp)
	assert.Zero(t, stats.TxCount)
	// Rolling totals pass through unchanged.
	assert.Equal(t, statsCheckpoint.TxCountRolling, stats.TxCountRolling)
	assert.Equal(t, statsCheckpoint.ProcessesRolling, stats.ProcessesRolling)
}

func TestStatsIndexerSeedsFromCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &fakeStatsStore{stopAt: 2, cancel: cancel}
	gw := &fakeStatsGW{
		tip: statsCheckpoint.Height + 2,
		blocks: map[uint32][]models.StatsTx{
			uint32(statsCheckpoint.Height + 1): {
				statsTx("t1", statsCheckpoint.Height+1, "alice", "Eval", "Message", "proc-1"),
			},
		},
		ts: map[uint64]uint64{statsCheckpoint.Height + 2: 1764200456},
	}
	s := NewStatsIndexer(gw, store, testLogger())
	s.idleDelay = 0

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, store.inserted, 2)
	first, second := store.inserted[0], store.inserted[1]
	assert.Equal(t, statsCheckpoint.Height+1, first.Height)
	assert.Equal(t, statsCheckpoint.TxCountRolling+1, first.TxCountRolling)
	assert.Equal(t, statsCheckpoint.Height+2, second.Height)
	assert.Equal(t, first.TxCountRolling, second.TxCountRolling)
	assert.Equal(t, uint64(1764200456), second.Timestamp)
}

func TestStatsIndexerSeedsFromLatestRow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	seed := models.ExplorerRow{BlockStats: models.BlockStats{
		Height:         1810000,
		TxCountRolling: 3000000000,
	}}
	store := &fakeStatsStore{latest: &seed, stopAt: 1, cancel: cancel}
	gw := &fakeStatsGW{
		tip: 1810005,
		ts:  map[uint64]uint64{1810001: 1764300000},
	}
	s := NewStatsIndexer(gw, store, testLogger())
	s.idleDelay = 0

	err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotEmpty(t, store.inserted)
	assert.Equal(t, uint64(1810001), store.inserted[0].Height)
	assert.Equal(t, uint64(3000000000), store.inserted[0].TxCountRolling)
}
