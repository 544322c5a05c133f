package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/projects"
)

func edgeJSON(id, cursor string, height uint64, tags map[string]string) string {
	tagList := make([]string, 0, len(tags))
	for k, v := range tags {
		tagList = append(tagList, fmt.Sprintf(`{"name":%q,"value":%q}`, k, v))
	}
	return fmt.Sprintf(`{
		"cursor": %q,
		"node": {
			"id": %q,
			"owner": {"address": "owner-addr"},
			"recipient": "recipient-addr",
			"tags": [%s],
			"block": {"height": %d, "timestamp": 1700000000},
			"bundledIn": {"id": "bundle-1"},
			"data": {"size": "321"}
		}
	}`, cursor, id, strings.Join(tagList, ","), height)
}

func gqlBody(hasNext bool, edges ...string) string {
	return fmt.Sprintf(`{"data":{"transactions":{"edges":[%s],"pageInfo":{"hasNextPage":%t}}}}`,
		strings.Join(edges, ","), hasNext)
}

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := New(srv.URL, srv.URL)
	c.SetInfoEndpoint(srv.URL)
	return c, srv
}

func TestScanBlockMessagesParsesPage(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, `min: 1594100, max: 1594100`)
		assert.Contains(t, req.Query, `"data-protocol"`)
		fmt.Fprint(w, gqlBody(true,
			edgeJSON("E1", "cur-1", 1594100, map[string]string{"Action": "Eval"}),
			edgeJSON("E2", "cur-2", 1594100, nil),
		))
	}))
	defer srv.Close()

	page, err := c.ScanBlockMessages(context.Background(), models.ProtocolA, 1594100, "")
	require.NoError(t, err)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "cur-2", page.EndCursor)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "E1", page.Messages[0].MsgID)
	assert.Equal(t, "owner-addr", page.Messages[0].Owner)
	assert.Equal(t, "bundle-1", page.Messages[0].BundledIn)
	assert.Equal(t, "321", page.Messages[0].DataSize)
	assert.Equal(t, uint32(1594100), page.Messages[0].BlockHeight)
	assert.Equal(t, []models.Tag{{Key: "Action", Value: "Eval"}}, page.Messages[0].Tags)
}

func TestScanBlockMessagesEmptyBlock(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gqlBody(false))
	}))
	defer srv.Close()

	_, err := c.ScanBlockMessages(context.Background(), models.ProtocolB, 1617000, "")
	assert.ErrorIs(t, err, ErrEmptyBlock)
}

func TestScanBlockMessagesHTTPStatus(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := c.ScanBlockMessages(context.Background(), models.ProtocolA, 1594100, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http status: 429")
	assert.Equal(t, 429, StatusCode(err))
}

func TestScanTokenMessagesFiltersTransfers(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, projects.AOTokenPID)
		fmt.Fprint(w, gqlBody(false,
			edgeJSON("E3", "cur-3", 1620100, map[string]string{"Action": "transfer"}),
			edgeJSON("E4", "cur-4", 1620100, map[string]string{"Action": "Balance"}),
		))
	}))
	defer srv.Close()

	page, err := c.ScanTokenMessages(context.Background(), TokenTransfer, 1620100, "")
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "E3", page.Messages[0].MsgID)
	assert.Equal(t, "cur-4", page.EndCursor)
}

func TestScanTokenMessagesProcessKeepsAll(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gqlBody(false,
			edgeJSON("E4", "cur-4", 1620100, map[string]string{"Action": "Debit-Notice"}),
		))
	}))
	defer srv.Close()

	page, err := c.ScanTokenMessages(context.Background(), TokenProcess, 1620100, "")
	require.NoError(t, err)
	assert.Len(t, page.Messages, 1)
}

func TestScanStatsBlockPagination(t *testing.T) {
	calls := 0
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if calls == 1 {
			assert.NotContains(t, req.Query, "after:")
			fmt.Fprint(w, gqlBody(true,
				edgeJSON("T1", "page-1", 1802759, map[string]string{"Action": "Eval", "From-Process": "proc-1"}),
			))
			return
		}
		assert.Contains(t, req.Query, `after: "page-1"`)
		fmt.Fprint(w, gqlBody(false,
			edgeJSON("T2", "page-2", 1802759, map[string]string{"Type": "Process"}),
		))
	}))
	defer srv.Close()

	txs, err := c.ScanStatsBlock(context.Background(), 1802759)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Eval", txs[0].Action)
	assert.Equal(t, "proc-1", txs[0].Process)
	assert.Equal(t, "Process", txs[1].Type)
}

func TestStatsTxProcessTagPrecedence(t *testing.T) {
	edge := gqlEdge{}
	edge.Node.ID = "T3"
	edge.Node.Tags = []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}{
		{Name: "Process", Value: "fallback-proc"},
		{Name: "From-Process", Value: "primary-proc"},
	}
	tx := statsTxFromEdge(edge)
	assert.Equal(t, "primary-proc", tx.Process)
}

func TestTipHeight(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info", r.URL.Path)
		fmt.Fprint(w, `{"height": 1802760, "network": "arweave.N.1"}`)
	}))
	defer srv.Close()

	tip, err := c.TipHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1802760), tip)
}

func TestBlockTimestampStringOrInt(t *testing.T) {
	payloads := map[string]uint64{
		`{"timestamp": 1764114408}`:   1764114408,
		`{"timestamp": "1764114408"}`: 1764114408,
		`{"timestamp": null}`:         0,
	}
	for payload, want := range payloads {
		c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/block/height/1802758", r.URL.Path)
			fmt.Fprint(w, payload)
		}))
		ts, err := c.BlockTimestamp(context.Background(), 1802758)
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, want, ts, payload)
	}
}

func TestNativeBalance(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wallet/some-wallet/balance", r.URL.Path)
		fmt.Fprint(w, "2500000000000")
	}))
	defer srv.Close()

	bal, err := c.NativeBalance(context.Background(), "some-wallet")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, bal, 1e-9)
}

func TestLatestSetDelegationsTiesAtMaxHeight(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, `owners: ["wallet-1"]`)
		assert.Contains(t, req.Query, "Set-Delegation")
		fmt.Fprint(w, gqlBody(false,
			edgeJSON("D1", "c1", 1700100, nil),
			edgeJSON("D2", "c2", 1700100, nil),
			edgeJSON("D3", "c3", 1700050, nil),
		))
	}))
	defer srv.Close()

	ids, err := c.LatestSetDelegations(context.Background(), "wallet-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"D1", "D2"}, ids)
}

func TestLatestSetDelegationsEmptyFallsBackToPI(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gqlBody(false))
	}))
	defer srv.Close()

	ids, err := c.LatestSetDelegations(context.Background(), "wallet-2")
	require.NoError(t, err)
	assert.Equal(t, []string{projects.InternalPIPID}, ids)
}

func TestLatestOracleSnapshot(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "Set-Balances")
		assert.Contains(t, req.Query, projects.AOAuthority)
		fmt.Fprint(w, gqlBody(false, edgeJSON("SNAP1", "c1", 1800000, nil)))
	}))
	defer srv.Close()

	id, err := c.LatestOracleSnapshot(context.Background(), "usds")
	require.NoError(t, err)
	assert.Equal(t, "SNAP1", id)
}

func TestLatestOracleSnapshotUnknownTicker(t *testing.T) {
	c := New("http://unused", "http://unused")
	_, err := c.LatestOracleSnapshot(context.Background(), "doge")
	assert.Error(t, err)
}

func TestLatestDelegationMappingsEmpty(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gqlBody(false))
	}))
	defer srv.Close()

	_, err := c.LatestDelegationMappings(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrEmptyBlock)
}

func TestDownload(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tx-abc", r.URL.Path)
		fmt.Fprint(w, "eoa,100,ar-addr")
	}))
	defer srv.Close()

	body, err := c.Download(context.Background(), "tx-abc")
	require.NoError(t, err)
	assert.Equal(t, "eoa,100,ar-addr", string(body))
}

func TestStatusCodeNoMatch(t *testing.T) {
	assert.Equal(t, 0, StatusCode(nil))
	assert.Equal(t, 0, StatusCode(errors.New("gateway request failed: dial tcp")))
}
