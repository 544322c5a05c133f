package indexer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permaweb/atlas/internal/config"
	"github.com/permaweb/atlas/internal/delegation"
	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/projects"
)

type fakeSnapshotGW struct {
	oracleTx    map[string]string // ticker -> tx id
	blobs       map[string][]byte // tx id -> payload
	balances    map[string]float64
	delegations map[string][]string // wallet -> batch ids
	prefTxs     map[string]string   // batch id -> preference tx id
	mappings    models.MappingPage
	mappingsErr error
}

func (g *fakeSnapshotGW) Download(_ context.Context, txID string) ([]byte, error) {
	blob, ok := g.blobs[txID]
	if !ok {
		return nil, fmt.Errorf("http status: 404")
	}
	return blob, nil
}

func (g *fakeSnapshotGW) NativeBalance(_ context.Context, addr string) (float64, error) {
	ar, ok := g.balances[addr]
	if !ok {
		return 0, fmt.Errorf("http status: 404")
	}
	return ar, nil
}

func (g *fakeSnapshotGW) LatestOracleSnapshot(_ context.Context, ticker string) (string, error) {
	tx, ok := g.oracleTx[ticker]
	if !ok {
		return "", errors.New("no snapshot")
	}
	return tx, nil
}

func (g *fakeSnapshotGW) LatestSetDelegations(_ context.Context, addr string) ([]string, error) {
	if ids, ok := g.delegations[addr]; ok {
		return ids, nil
	}
	return []string{projects.InternalPIPID}, nil
}

func (g *fakeSnapshotGW) DelegationPreferenceTx(_ context.Context, batchID string) (string, error) {
	tx, ok := g.prefTxs[batchID]
	if !ok {
		return "", fmt.Errorf("delegation preference for batch %s: not found", batchID)
	}
	return tx, nil
}

func (g *fakeSnapshotGW) LatestDelegationMappings(context.Context, int, string) (models.MappingPage, error) {
	return g.mappings, g.mappingsErr
}

type fakeSnapshotStore struct {
	seenOracles  map[string]bool
	seenMappings map[string]bool
	events       []string
	balances     []models.WalletBalanceRow
	delegations  []models.WalletDelegationRow
	positions    []models.PositionRow
	mappingRows  []models.DelegationMappingRow
}

func (s *fakeSnapshotStore) InsertOracles(_ context.Context, rows []models.OracleSnapshotRow) error {
	s.events = append(s.events, fmt.Sprintf("oracles:%d", len(rows)))
	return nil
}

func (s *fakeSnapshotStore) InsertBalances(_ context.Context, rows []models.WalletBalanceRow) error {
	s.events = append(s.events, fmt.Sprintf("balances:%d", len(rows)))
	s.balances = append(s.balances, rows...)
	return nil
}

func (s *fakeSnapshotStore) InsertDelegations(_ context.Context, rows []models.WalletDelegationRow) error {
	s.events = append(s.events, fmt.Sprintf("delegations:%d", len(rows)))
	s.delegations = append(s.delegations, rows...)
	return nil
}

func (s *fakeSnapshotStore) InsertPositions(_ context.Context, rows []models.PositionRow) error {
	s.events = append(s.events, fmt.Sprintf("positions:%d", len(rows)))
	s.positions = append(s.positions, rows...)
	return nil
}

func (s *fakeSnapshotStore) InsertDelegationMappings(_ context.Context, rows []models.DelegationMappingRow) error {
	s.events = append(s.events, fmt.Sprintf("mappings:%d", len(rows)))
	s.mappingRows = append(s.mappingRows, rows...)
	return nil
}

func (s *fakeSnapshotStore) HasOracle(_ context.Context, ticker, txID string) (bool, error) {
	return s.seenOracles[ticker+"/"+txID], nil
}

func (s *fakeSnapshotStore) HasDelegationMapping(_ context.Context, txID string) (bool, error) {
	return s.seenMappings[txID], nil
}

func newTestPipeline(gw *fakeSnapshotGW, store *fakeSnapshotStore) *SnapshotPipeline {
	cfg := config.SnapshotConfig{RefreshSecs: 300, Concurrency: 4, Tickers: "usds"}
	return NewSnapshotPipeline(gw, store, cfg, testLogger())
}

const piPID = "4hXj_E-5fAKmo4E8KjgQvuDJKAFk9P2grhycVmISDLs"

func TestResolveDelegationsPrefersFullyAllocated(t *testing.T) {
	gw := &fakeSnapshotGW{
		delegations: map[string][]string{"wallet-1": {"batch-a", "batch-b"}},
		prefTxs:     map[string]string{"batch-a": "pref-a", "batch-b": "pref-b"},
		blobs: map[string][]byte{
			"pref-a": []byte(`{"wallet":"wallet-1","totalFactor":5000,"delegationPrefs":[{"walletTo":"` + piPID + `","factor":5000}]}`),
			"pref-b": []byte(`{"wallet":"wallet-1","totalFactor":10000,"delegationPrefs":[{"walletTo":"` + piPID + `","factor":10000}]}`),
		},
	}
	p := newTestPipeline(gw, &fakeSnapshotStore{})

	pref := p.resolveDelegations(context.Background(), "wallet-1")
	assert.Equal(t, uint32(10000), pref.TotalFactor)
	require.Len(t, pref.DelegationPrefs, 1)
	assert.Equal(t, uint32(10000), pref.DelegationPrefs[0].Factor)
}

func TestResolveDelegationsKeepsPartialFallback(t *testing.T) {
	gw := &fakeSnapshotGW{
		delegations: map[string][]string{"wallet-1": {"batch-a"}},
		prefTxs:     map[string]string{"batch-a": "pref-a"},
		blobs: map[string][]byte{
			"pref-a": []byte(`{"wallet":"wallet-1","totalFactor":7000,"delegationPrefs":[{"walletTo":"` + piPID + `","factor":7000}]}`),
		},
	}
	p := newTestPipeline(gw, &fakeSnapshotStore{})

	pref := p.resolveDelegations(context.Background(), "wallet-1")
	assert.Equal(t, uint32(7000), pref.TotalFactor)
}

func TestResolveDelegationsDefaultsToPI(t *testing.T) {
	// No delegation history resolves through the sentinel batch id, which
	// has no pushed preference, and lands on the implicit default.
	p := newTestPipeline(&fakeSnapshotGW{}, &fakeSnapshotStore{})

	pref := p.resolveDelegations(context.Background(), "wallet-9")
	assert.Equal(t, "base_wallet-9", pref.Key)
	assert.Equal(t, projects.MaxFactor, pref.TotalFactor)
	assert.Equal(t, "wallet-9", pref.Wallet)
	assert.Equal(t, "not found", pref.DelegationMsgID)
	require.Len(t, pref.DelegationPrefs, 1)
	assert.Equal(t, projects.InternalPIPID, pref.DelegationPrefs[0].WalletTo)
}

func TestApportionSplitsByFactor(t *testing.T) {
	res := walletResolution{
		record: models.BalanceRecord{EOA: "0xabc", ArAddress: "wallet-1"},
		pref: models.Preference{
			TotalFactor: 10000,
			DelegationPrefs: []models.PrefEntry{
				{WalletTo: piPID, Factor: 2500},
				{WalletTo: "not-a-project", Factor: 7500},
			},
		},
	}
	rows := apportion(time.Now(), "usds", res, decimal.NewFromInt(100), decimal.NewFromInt(4))

	require.Len(t, rows, 1)
	assert.Equal(t, piPID, rows[0].Project)
	assert.Equal(t, uint32(2500), rows[0].Factor)
	assert.Equal(t, "25", rows[0].Amount)
	assert.Equal(t, "1", rows[0].ArAmount)
}

// A wallet with no delegation history must still materialize as a single
// 100% PI position.
func TestApportionDefaultPreferenceYieldsPIPosition(t *testing.T) {
	res := walletResolution{
		record: models.BalanceRecord{EOA: "0xabc", ArAddress: "wallet-9"},
		pref:   delegation.Default("wallet-9"),
	}
	rows := apportion(time.Now(), "usds", res, decimal.NewFromInt(40), decimal.Zero)

	require.Len(t, rows, 1)
	assert.Equal(t, piPID, rows[0].Project)
	assert.Equal(t, projects.MaxFactor, rows[0].Factor)
	assert.Equal(t, "40", rows[0].Amount)
}

func TestApportionSkipsZeroSlices(t *testing.T) {
	res := walletResolution{
		record: models.BalanceRecord{ArAddress: "wallet-1"},
		pref: models.Preference{
			DelegationPrefs: []models.PrefEntry{{WalletTo: piPID, Factor: 10000}},
		},
	}
	rows := apportion(time.Now(), "usds", res, decimal.Zero, decimal.Zero)
	assert.Empty(t, rows)
}

func TestParseAmountScalesBaseUnits(t *testing.T) {
	assert.Equal(t, "2500", parseAmount("2500000000000000000000").String())
	assert.Equal(t, "0.5", parseAmount("500000000000000000").String())
	assert.Equal(t, "0", parseAmount("garbage").String())
}

func TestSnapshotTickerSkipsSeenOracle(t *testing.T) {
	gw := &fakeSnapshotGW{oracleTx: map[string]string{"usds": "oracle-1"}}
	store := &fakeSnapshotStore{seenOracles: map[string]bool{"usds/oracle-1": true}}
	p := newTestPipeline(gw, store)

	fresh, err := p.snapshotTicker(context.Background(), "usds")
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Empty(t, store.events)
}

func TestSnapshotTickerMaterializesCycle(t *testing.T) {
	csv := "0xaaa,2000000000000000000,wallet-1\n" +
		"0xbbb,500000000000000000,wallet-2\n"
	gw := &fakeSnapshotGW{
		oracleTx: map[string]string{"usds": "oracle-1"},
		blobs: map[string][]byte{
			"oracle-1": []byte(csv),
			"pref-a":   []byte(`{"wallet":"wallet-1","totalFactor":10000,"delegationPrefs":[{"walletTo":"` + piPID + `","factor":10000}]}`),
		},
		balances:    map[string]float64{"wallet-1": 3.5},
		delegations: map[string][]string{"wallet-1": {"batch-a"}},
		prefTxs:     map[string]string{"batch-a": "pref-a"},
	}
	store := &fakeSnapshotStore{}
	p := newTestPipeline(gw, store)

	fresh, err := p.snapshotTicker(context.Background(), "usds")
	require.NoError(t, err)
	assert.True(t, fresh)

	assert.Equal(t, []string{"oracles:1", "balances:2", "delegations:2", "positions:2"}, store.events)

	require.Len(t, store.balances, 2)
	assert.Equal(t, "2", store.balances[0].Amount)
	assert.Equal(t, "3.5", store.balances[0].ArBalance)
	assert.Equal(t, "oracle-1", store.balances[0].TxID)
	// wallet-2 has no AR balance on the gateway; it degrades to zero.
	assert.Equal(t, "0.5", store.balances[1].Amount)
	assert.Equal(t, "0", store.balances[1].ArBalance)

	// wallet-1 delegates everything to PI explicitly; wallet-2 falls back
	// to the implicit 100% PI default.
	byWallet := map[string][]models.PositionRow{}
	for _, row := range store.positions {
		byWallet[row.Wallet] = append(byWallet[row.Wallet], row)
	}
	require.Len(t, byWallet["wallet-1"], 1)
	assert.Equal(t, piPID, byWallet["wallet-1"][0].Project)
	require.Len(t, byWallet["wallet-2"], 1)
	assert.Equal(t, piPID, byWallet["wallet-2"][0].Project)
	assert.Equal(t, projects.MaxFactor, byWallet["wallet-2"][0].Factor)
	assert.Equal(t, "0.5", byWallet["wallet-2"][0].Amount)
}

func TestIndexDelegationMappings(t *testing.T) {
	csv := "wallet-1," + piPID + ",10000\n" +
		"wallet-2," + piPID + ",2500\n"
	gw := &fakeSnapshotGW{
		mappings: models.MappingPage{Mappings: []models.DelegationMappingMeta{
			{TxID: "map-1", Height: 1700500},
			{TxID: "map-0", Height: 1700400},
		}},
		blobs: map[string][]byte{"map-1": []byte(csv)},
	}
	store := &fakeSnapshotStore{seenMappings: map[string]bool{"map-0": true}}
	p := newTestPipeline(gw, store)

	err := p.indexDelegationMappings(context.Background())
	require.NoError(t, err)
	require.Len(t, store.mappingRows, 2)
	assert.Equal(t, "map-1", store.mappingRows[0].TxID)
	assert.Equal(t, uint32(1700500), store.mappingRows[0].Height)
	assert.Equal(t, uint32(2500), store.mappingRows[1].Factor)
}
