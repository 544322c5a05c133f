// Package gateway implements the Arweave gateway client: GraphQL message
// scans and the handful of REST endpoints the indexers depend on.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/projects"
)

// ErrEmptyBlock marks a block scan that returned zero edges. It is not a
// network failure; workers advance past the height.
var ErrEmptyBlock = errors.New("no ao message id found for the given query")

// ErrNoData marks a lookup whose response held no usable record.
var ErrNoData = errors.New("no matching record found")

// TokenQuery selects the AO token sub-query.
type TokenQuery string

const (
	TokenTransfer TokenQuery = "transfer"
	TokenProcess  TokenQuery = "process"
)

const arweaveInfoURL = "https://arweave.net"

// Client issues GraphQL and REST calls against the Ledger gateways. It is
// stateless; callers decide scheduling and retries.
type Client struct {
	primary string
	mainnet string
	info    string
	http    *http.Client
}

// New builds a client over the primary gateway (oracle/delegation queries,
// blob downloads) and the mainnet gateway (block scans, stats).
func New(primary, mainnet string) *Client {
	return &Client{
		primary: strings.TrimRight(primary, "/"),
		mainnet: strings.TrimRight(mainnet, "/"),
		info:    arweaveInfoURL,
		// no inner timeout; stalls are bounded by the workers' retry policy
		http: &http.Client{},
	}
}

// graphQL wire shapes. Tag names are case-sensitive as written.
type gqlEdge struct {
	Cursor string `json:"cursor"`
	Node   struct {
		ID    string `json:"id"`
		Owner struct {
			Address string `json:"address"`
		} `json:"owner"`
		Recipient string `json:"recipient"`
		Tags      []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"tags"`
		Block struct {
			Height    uint64 `json:"height"`
			Timestamp int64  `json:"timestamp"`
		} `json:"block"`
		BundledIn *struct {
			ID string `json:"id"`
		} `json:"bundledIn"`
		Data *struct {
			Size string `json:"size"`
		} `json:"data"`
	} `json:"node"`
}

type gqlTransactions struct {
	Edges    []gqlEdge `json:"edges"`
	PageInfo struct {
		HasNextPage bool `json:"hasNextPage"`
	} `json:"pageInfo"`
}

type gqlResponse struct {
	Data *struct {
		Transactions gqlTransactions `json:"transactions"`
	} `json:"data"`
}

func (c *Client) post(ctx context.Context, endpoint, query string) (*gqlTransactions, error) {
	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": map[string]any{},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, httpStatusError(res.StatusCode)
	}
	var out gqlResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gateway response decode failed: %w", err)
	}
	if out.Data == nil {
		return nil, errors.New("no transactions object found in gateway response")
	}
	return &out.Data.Transactions, nil
}

// httpStatusError keeps the numeric status inside the error text so workers
// can classify 429 and transient 5xx responses.
func httpStatusError(code int) error {
	return fmt.Errorf("http status: %d", code)
}

// StatusCode extracts the numeric status from a gateway error, or 0.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}
	msg := err.Error()
	idx := strings.Index(msg, "http status: ")
	if idx < 0 {
		return 0
	}
	rest := msg[idx+len("http status: "):]
	if len(rest) > 3 {
		rest = rest[:3]
	}
	code, _ := strconv.Atoi(rest)
	return code
}

func pageFromEdges(txs *gqlTransactions) models.MessagePage {
	page := models.MessagePage{HasNextPage: txs.PageInfo.HasNextPage}
	for _, edge := range txs.Edges {
		if edge.Cursor != "" {
			page.EndCursor = edge.Cursor
		}
		node := edge.Node
		if node.ID == "" {
			continue
		}
		meta := models.MessageMeta{
			MsgID:          node.ID,
			Owner:          node.Owner.Address,
			Recipient:      node.Recipient,
			BlockHeight:    uint32(node.Block.Height),
			BlockTimestamp: uint64(max(node.Block.Timestamp, 0)),
		}
		if node.BundledIn != nil {
			meta.BundledIn = node.BundledIn.ID
		}
		if node.Data != nil {
			meta.DataSize = node.Data.Size
		}
		for _, tag := range node.Tags {
			meta.Tags = append(meta.Tags, models.Tag{Key: tag.Name, Value: tag.Value})
		}
		page.Messages = append(page.Messages, meta)
	}
	return page
}

// ScanBlockMessages fetches one page of protocol messages at a height.
// A response with zero edges yields ErrEmptyBlock.
func (c *Client) ScanBlockMessages(ctx context.Context, variant models.Protocol, height uint32, cursor string) (models.MessagePage, error) {
	txs, err := c.post(ctx, c.mainnet, blockScanQuery(variant, height, cursor))
	if err != nil {
		return models.MessagePage{}, err
	}
	page := pageFromEdges(txs)
	if len(page.Messages) == 0 {
		return models.MessagePage{}, ErrEmptyBlock
	}
	return page, nil
}

// ScanTokenMessages fetches one page of AO token messages at a height for
// one sub-query. Transfer pages are re-checked client-side for an Action
// tag equal to "transfer" (case-insensitive); gateways have returned
// loosely matched edges here. An empty page is not an error.
func (c *Client) ScanTokenMessages(ctx context.Context, kind TokenQuery, height uint32, cursor string) (models.MessagePage, error) {
	txs, err := c.post(ctx, c.primary, tokenScanQuery(kind, height, cursor))
	if err != nil {
		return models.MessagePage{}, err
	}
	page := pageFromEdges(txs)
	if kind == TokenTransfer {
		kept := page.Messages[:0]
		for _, meta := range page.Messages {
			if hasActionTransfer(meta.Tags) {
				kept = append(kept, meta)
			}
		}
		page.Messages = kept
	}
	return page, nil
}

func hasActionTransfer(tags []models.Tag) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag.Key, "action") && strings.EqualFold(tag.Value, "transfer") {
			return true
		}
	}
	return false
}

// ScanStatsBlock fetches every Data-Protocol=ao transaction in a block,
// chaining cursors until the gateway reports no further page.
func (c *Client) ScanStatsBlock(ctx context.Context, height uint32) ([]models.StatsTx, error) {
	var all []models.StatsTx
	cursor := ""
	for {
		txs, err := c.post(ctx, c.mainnet, statsScanQuery(height, cursor))
		if err != nil {
			return nil, err
		}
		next := ""
		for _, edge := range txs.Edges {
			next = edge.Cursor
			all = append(all, statsTxFromEdge(edge))
		}
		if !txs.PageInfo.HasNextPage || next == "" {
			return all, nil
		}
		cursor = next
	}
}

func statsTxFromEdge(edge gqlEdge) models.StatsTx {
	tx := models.StatsTx{
		ID:             edge.Node.ID,
		BlockHeight:    edge.Node.Block.Height,
		BlockTimestamp: edge.Node.Block.Timestamp,
		Owner:          edge.Node.Owner.Address,
	}
	for _, tag := range edge.Node.Tags {
		switch tag.Name {
		case "Type":
			tx.Type = tag.Value
		case "Action":
			tx.Action = tag.Value
		case "From-Process":
			tx.Process = tag.Value
		case "Process":
			if tx.Process == "" {
				tx.Process = tag.Value
			}
		}
	}
	return tx
}

// TipHeight returns the current Ledger height.
func (c *Client) TipHeight(ctx context.Context) (uint64, error) {
	var info struct {
		Height uint64 `json:"height"`
	}
	if err := c.getJSON(ctx, c.info+"/info", &info); err != nil {
		return 0, err
	}
	return info.Height, nil
}

// BlockTimestamp returns the unix timestamp of a block. Gateways have
// served the field both as an integer and as a string.
func (c *Client) BlockTimestamp(ctx context.Context, height uint64) (uint64, error) {
	var block struct {
		Timestamp json.RawMessage `json:"timestamp"`
	}
	url := fmt.Sprintf("%s/block/height/%d", c.info, height)
	if err := c.getJSON(ctx, url, &block); err != nil {
		return 0, err
	}
	raw := strings.Trim(string(block.Timestamp), `"`)
	ts, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, nil
	}
	return ts, nil
}

// Download fetches the raw payload bytes of a transaction.
func (c *Client) Download(ctx context.Context, txID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.primary+"/"+txID, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return nil, httpStatusError(res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// NativeBalance returns a wallet's AR balance scaled from winston.
func (c *Client) NativeBalance(ctx context.Context, addr string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.primary+"/wallet/"+addr+"/balance", nil)
	if err != nil {
		return 0, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gateway request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return 0, httpStatusError(res.StatusCode)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, err
	}
	winston, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		return 0, fmt.Errorf("unreadable balance for %s: %w", addr, err)
	}
	return winston / 1e12, nil
}

// LatestOracleSnapshot returns the newest Set-Balances tx id published by
// the authority for a ticker's oracle process.
func (c *Client) LatestOracleSnapshot(ctx context.Context, ticker string) (string, error) {
	pid, ok := projects.OraclePID(ticker)
	if !ok {
		return "", fmt.Errorf("unknown oracle ticker %q", ticker)
	}
	tags := tagFilter("Action", "Set-Balances") + ", " + tagFilter("From-Process", pid)
	txs, err := c.post(ctx, c.primary, heightDescQuery(1, projects.AOAuthority, tags, ""))
	if err != nil {
		return "", err
	}
	if len(txs.Edges) == 0 || txs.Edges[0].Node.ID == "" {
		return "", fmt.Errorf("oracle snapshot for %s: %w", ticker, ErrNoData)
	}
	return txs.Edges[0].Node.ID, nil
}

// LatestSetDelegations returns the wallet's most recent Set-Delegation tx
// ids, keeping every candidate tied at the maximum block height. A wallet
// with no delegation history resolves to the internal PI sentinel.
func (c *Client) LatestSetDelegations(ctx context.Context, addr string) ([]string, error) {
	tags := tagFilter("Action", "Set-Delegation")
	txs, err := c.post(ctx, c.primary, heightDescQuery(10, addr, tags, ""))
	if err != nil {
		return nil, err
	}
	type node struct {
		id     string
		height uint64
	}
	var nodes []node
	var maxHeight uint64
	for _, edge := range txs.Edges {
		if edge.Node.ID == "" {
			continue
		}
		n := node{id: edge.Node.ID, height: edge.Node.Block.Height}
		nodes = append(nodes, n)
		if n.height > maxHeight {
			maxHeight = n.height
		}
	}
	if len(nodes) == 0 {
		return []string{projects.InternalPIPID}, nil
	}
	var ids []string
	for _, n := range nodes {
		if n.height == maxHeight {
			ids = append(ids, n.id)
		}
	}
	return ids, nil
}

// DelegationPreferenceTx resolves the second hop of a delegation lookup:
// the preference message the delegation process pushed for a batch id.
func (c *Client) DelegationPreferenceTx(ctx context.Context, batchID string) (string, error) {
	tags := tagFilter("From-Process", projects.DelegationPID) + ", " + tagFilter("Pushed-For", batchID)
	txs, err := c.post(ctx, c.primary, heightDescQuery(1, projects.AOAuthority, tags, ""))
	if err != nil {
		return "", err
	}
	if len(txs.Edges) == 0 || txs.Edges[0].Node.ID == "" {
		return "", fmt.Errorf("delegation preference for batch %s: %w", batchID, ErrNoData)
	}
	return txs.Edges[0].Node.ID, nil
}

// LatestDelegationMappings pages the authority's Delegation-Mappings
// broadcasts, newest first.
func (c *Client) LatestDelegationMappings(ctx context.Context, first int, cursor string) (models.MappingPage, error) {
	if first <= 0 {
		first = 1
	}
	tags := tagFilter("Action", "Delegation-Mappings")
	txs, err := c.post(ctx, c.primary, heightDescQuery(first, projects.AOAuthority, tags, cursor))
	if err != nil {
		return models.MappingPage{}, err
	}
	page := models.MappingPage{HasNextPage: txs.PageInfo.HasNextPage}
	for _, edge := range txs.Edges {
		if edge.Cursor != "" {
			page.EndCursor = edge.Cursor
		}
		if edge.Node.ID == "" {
			continue
		}
		page.Mappings = append(page.Mappings, models.DelegationMappingMeta{
			TxID:   edge.Node.ID,
			Height: uint32(edge.Node.Block.Height),
		})
	}
	if len(page.Mappings) == 0 {
		return models.MappingPage{}, ErrEmptyBlock
	}
	return page, nil
}

// LatestMintReport returns the newest Add-Own-Mint-Report tx id a project
// process pushed through the authority.
func (c *Client) LatestMintReport(ctx context.Context, flpPid string) (string, error) {
	tags := tagFilter("Action", "Add-Own-Mint-Report") + ", " + tagFilter("From-Process", flpPid)
	txs, err := c.post(ctx, c.primary, heightDescQuery(1, projects.AOAuthority, tags, ""))
	if err != nil {
		return "", err
	}
	if len(txs.Edges) == 0 || txs.Edges[0].Node.ID == "" {
		return "", fmt.Errorf("minting report for %s: %w", flpPid, ErrNoData)
	}
	return txs.Edges[0].Node.ID, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		io.Copy(io.Discard, res.Body)
		return httpStatusError(res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway response decode failed: %w", err)
	}
	return nil
}

// SetInfoEndpoint overrides the network info endpoint. Used by tests.
func (c *Client) SetInfoEndpoint(url string) {
	c.info = strings.TrimRight(url, "/")
}
