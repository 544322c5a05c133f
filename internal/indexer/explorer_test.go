package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permaweb/atlas/internal/models"
)

type fakeExplorerStore struct {
	latest    *models.ExplorerRow
	batches   [][]models.BlockMetrics
	fetchArgs []uint32
	inserted  []models.ExplorerRow
	truncated bool
}

func (s *fakeExplorerStore) TruncateMainnetExplorer(context.Context) error {
	s.truncated = true
	return nil
}

func (s *fakeExplorerStore) FetchBlockMetrics(_ context.Context, afterHeight uint32, _ uint64) ([]models.BlockMetrics, error) {
	s.fetchArgs = append(s.fetchArgs, afterHeight)
	if len(s.batches) == 0 {
		return nil, fmt.Errorf("unexpected fetch after %d", afterHeight)
	}
	next := s.batches[0]
	s.batches = s.batches[1:]
	return next, nil
}

func (s *fakeExplorerStore) InsertMainnetExplorerRows(_ context.Context, rows []models.ExplorerRow) error {
	s.inserted = append(s.inserted, rows...)
	return nil
}

func (s *fakeExplorerStore) LatestMainnetExplorerRow(context.Context) (*models.ExplorerRow, error) {
	return s.latest, nil
}

func metric(height, txs, procs, mods uint64) models.BlockMetrics {
	return models.BlockMetrics{
		TS:              time.Unix(1700000000+int64(height), 0).UTC(),
		Height:          height,
		TxCount:         txs,
		NewProcessCount: procs,
		NewModuleCount:  mods,
	}
}

func TestExplorerRebuildAccumulatesRollingTotals(t *testing.T) {
	store := &fakeExplorerStore{
		batches: [][]models.BlockMetrics{
			{metric(1616999, 10, 2, 1), metric(1617000, 5, 0, 0)},
			{metric(1617003, 7, 1, 0)},
			{},
		},
	}
	m := NewExplorerMaterializer(store, testLogger())

	err := m.Rebuild(context.Background())
	require.NoError(t, err)

	assert.True(t, store.truncated)
	// Each fetch resumes after the last derived height.
	assert.Equal(t, []uint32{0, 1617000, 1617003}, store.fetchArgs)

	require.Len(t, store.inserted, 3)
	assert.Equal(t, uint64(10), store.inserted[0].TxCountRolling)
	assert.Equal(t, uint64(15), store.inserted[1].TxCountRolling)
	assert.Equal(t, uint64(22), store.inserted[2].TxCountRolling)
	assert.Equal(t, uint64(3), store.inserted[2].ProcessesRolling)
	assert.Equal(t, uint64(1), store.inserted[2].ModulesRolling)
	assert.Equal(t, uint64(1617003), store.inserted[2].Height)
	assert.Equal(t, store.inserted[2].TS.Unix(), int64(store.inserted[2].Timestamp))
}

func TestExplorerTailSeedsFromLatestRow(t *testing.T) {
	store := &fakeExplorerStore{
		latest: &models.ExplorerRow{BlockStats: models.BlockStats{
			Height:           1617010,
			TxCountRolling:   100,
			ProcessesRolling: 20,
			ModulesRolling:   5,
		}},
		batches: [][]models.BlockMetrics{
			{metric(1617011, 4, 1, 0)},
		},
	}
	m := NewExplorerMaterializer(store, testLogger())
	m.idleDelay = time.Millisecond

	// The tail loops until its scripted batches run out and the fetch fails.
	err := m.Tail(context.Background())
	require.Error(t, err)

	assert.Equal(t, []uint32{1617010, 1617011}, store.fetchArgs)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, uint64(104), store.inserted[0].TxCountRolling)
	assert.Equal(t, uint64(21), store.inserted[0].ProcessesRolling)
	assert.Equal(t, uint64(5), store.inserted[0].ModulesRolling)
}
