// Package handler implements the Atlas HTTP query surface.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/permaweb/atlas/internal/config"
	"github.com/permaweb/atlas/internal/delegation"
	"github.com/permaweb/atlas/internal/models"
	"github.com/permaweb/atlas/internal/parse"
	"github.com/permaweb/atlas/internal/pkg/response"
	"github.com/permaweb/atlas/internal/projects"
	"github.com/permaweb/atlas/internal/repository"
)

const version = "0.1.0"

// Store is the repository slice the query surface reads through.
type Store interface {
	LatestProjectSnapshot(ctx context.Context, project string) (*models.ProjectSnapshot, error)
	WalletIdentityHistory(ctx context.Context, wallet string) ([]models.IdentityLink, error)
	EOAIdentityHistory(ctx context.Context, eoa string) ([]models.IdentityLink, error)
	OracleSnapshotFeed(ctx context.Context, ticker string, limit uint64) ([]models.OracleSnapshotFeedEntry, error)
	WalletDelegationMappings(ctx context.Context, wallet string) ([]models.DelegationMappingHistory, error)
	LatestDelegationHeights(ctx context.Context, limit uint64) ([]models.DelegationHeight, error)
	MultiProjectDelegators(ctx context.Context, limit uint64) ([]models.MultiDelegator, error)
	ProjectCycleTotals(ctx context.Context, project, ticker string, limit uint64) ([]models.ProjectCycleTotal, error)

	LatestExplorerBlocks(ctx context.Context, limit uint64) ([]models.ExplorerRow, error)
	DailyExplorerStats(ctx context.Context, day time.Time) (*models.ExplorerDayStats, error)
	RecentExplorerDays(ctx context.Context, limit uint64) ([]models.ExplorerDayStats, error)
	MainnetExplorerBlocks(ctx context.Context, limit uint64) ([]models.ExplorerRow, error)
	MainnetDailyExplorerStats(ctx context.Context, day time.Time) (*models.ExplorerDayStats, error)
	MainnetRecentExplorerDays(ctx context.Context, limit uint64) ([]models.ExplorerDayStats, error)

	RecentMainnetMessages(ctx context.Context, protocol string, limit uint64) ([]models.MainnetMessage, error)
	BlockMainnetMessages(ctx context.Context, protocol string, height uint32, limit uint64) ([]models.MainnetMessage, error)
	MainnetMessagesByTag(ctx context.Context, protocol string, tagKeys []string, tagValue string, limit uint64) ([]models.MainnetMessage, error)
	MainnetIndexingInfo(ctx context.Context) ([]models.MainnetProtocolInfo, error)

	TokenMessages(ctx context.Context, f models.TokenMessageFilter) ([]models.TokenMessage, error)
	TokenMessageByID(ctx context.Context, msgID string) ([]models.TokenMessage, error)
	TokenMessagesByTag(ctx context.Context, source, tagKey, tagValue string, limit uint64) ([]models.TokenMessage, error)
	TokenIndexingInfo(ctx context.Context, arweaveTip *uint64) (*models.TokenIndexingInfo, error)
	TokenFrequency(ctx context.Context, limit uint64) (*models.TokenFrequencyInfo, error)
	TokenRichlist(ctx context.Context, limit uint64) (*models.TokenRichlist, error)
}

// Gateway is the slice of the Ledger gateway client the live routes consume.
type Gateway interface {
	Download(ctx context.Context, txID string) ([]byte, error)
	TipHeight(ctx context.Context) (uint64, error)
	LatestOracleSnapshot(ctx context.Context, ticker string) (string, error)
	LatestSetDelegations(ctx context.Context, addr string) ([]string, error)
	DelegationPreferenceTx(ctx context.Context, batchID string) (string, error)
	LatestMintReport(ctx context.Context, flpPid string) (string, error)
}

// Handler serves the query API.
type Handler struct {
	store  Store
	gw     Gateway
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a query API handler.
func New(store Store, gw Gateway, cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{store: store, gw: gw, cfg: cfg, logger: logger}
}

// Routes mounts every query route.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.root)

	r.Get("/wallet/delegations/{address}", h.walletDelegations)
	r.Get("/wallet/identity/eoa/{eoa}", h.eoaIdentity)
	r.Get("/wallet/identity/ar-wallet/{address}", h.walletIdentity)
	r.Get("/wallet/delegation-mappings/{address}", h.walletDelegationMappings)
	r.Get("/delegation-mappings/heights", h.delegationMappingHeights)

	r.Get("/oracle/{ticker}", h.oracleData)
	r.Get("/oracle/feed/{ticker}", h.oracleFeed)

	r.Get("/flp/delegators/multi", h.multiProjectDelegators)
	r.Get("/flp/delegators/{project}", h.projectSnapshot)
	r.Get("/flp/{project}/cycles", h.projectCycleTotals)
	r.Get("/flp/minting/{project}", h.mintingReport)
	r.Get("/flp/metadata/all", h.projectsMetadata)

	r.Get("/explorer/blocks", h.explorerBlocks)
	r.Get("/explorer/day", h.explorerDayStats)
	r.Get("/explorer/days", h.explorerRecentDays)
	r.Get("/mainnet/explorer/blocks", h.mainnetExplorerBlocks)
	r.Get("/mainnet/explorer/day", h.mainnetExplorerDayStats)
	r.Get("/mainnet/explorer/days", h.mainnetExplorerRecentDays)

	r.Get("/mainnet/messages/recent", h.mainnetRecentMessages)
	r.Get("/mainnet/messages/block/{height}", h.mainnetBlockMessages)
	r.Get("/mainnet/messages/tags", h.mainnetMessagesByTag)
	r.Get("/mainnet/info", h.mainnetIndexingInfo)

	r.Get("/token/{token}/txs", h.tokenMessages)
	r.Get("/token/{token}/txs/tags", h.tokenMessagesByTag)
	r.Get("/token/{token}/txs/{msg_id}", h.tokenMessageByID)
	r.Get("/token/{token}/info", h.tokenIndexingInfo)
	r.Get("/token/{token}/frequency", h.tokenFrequency)
	r.Get("/token/{token}/richlist", h.tokenRichlist)

	return r
}

// writeErr maps an error to the API error shape. Empty results surface as
// 404, everything else as a plain 500.
func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, repository.ErrNotFound) {
		status = http.StatusNotFound
	} else {
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	response.Error(w, status, err)
}

func (h *Handler) root(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]any{
		"status":  "running",
		"name":    "atlas-server",
		"version": version,
		"config": map[string]any{
			"indexers":                h.cfg.Indexers,
			"primary_arweave_gateway": h.cfg.Gateway.Primary,
		},
	})
}

func (h *Handler) walletDelegations(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	pref := delegation.Resolve(r.Context(), h.gw, addr)
	response.OK(w, pref)
}

func (h *Handler) eoaIdentity(w http.ResponseWriter, r *http.Request) {
	links, err := h.store.EOAIdentityHistory(r.Context(), chi.URLParam(r, "eoa"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, links)
}

func (h *Handler) walletIdentity(w http.ResponseWriter, r *http.Request) {
	links, err := h.store.WalletIdentityHistory(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, links)
}

func (h *Handler) walletDelegationMappings(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.WalletDelegationMappings(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, history)
}

func (h *Handler) delegationMappingHeights(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.LatestDelegationHeights(r.Context(), limitParam(r, 25))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

// oracleData serves the freshly parsed content of a ticker's newest oracle
// balance sheet, straight from the gateway.
func (h *Handler) oracleData(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	txID, err := h.gw.LatestOracleSnapshot(r.Context(), ticker)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	data, err := h.gw.Download(r.Context(), txID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	records, err := parse.BalancesCSV(data)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, records)
}

func (h *Handler) oracleFeed(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	pid, ok := projects.OraclePID(ticker)
	if !ok {
		response.Error(w, http.StatusBadRequest, errors.New("unknown oracle ticker"))
		return
	}
	feed, err := h.store.OracleSnapshotFeed(r.Context(), ticker, 25)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	evm, _ := projects.StakingAddress(ticker)
	response.OK(w, map[string]any{
		"oracle_pid":           pid,
		"oracle_evm_address":   evm,
		"recent_indexed_feeds": feed,
	})
}

func (h *Handler) multiProjectDelegators(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.MultiProjectDelegators(r.Context(), limitParam(r, 100))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) projectSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.store.LatestProjectSnapshot(r.Context(), chi.URLParam(r, "project"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, snapshot)
}

func (h *Handler) projectCycleTotals(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	rows, err := h.store.ProjectCycleTotals(r.Context(), chi.URLParam(r, "project"), ticker, limitParam(r, 25))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

// mintingReport serves a project's newest published minting report, fetched
// and parsed live.
func (h *Handler) mintingReport(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	reportID, err := h.gw.LatestMintReport(r.Context(), project)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	data, err := h.gw.Download(r.Context(), reportID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	report, err := parse.MintReport(data)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	report.ReportID = reportID
	response.OK(w, report)
}

func (h *Handler) projectsMetadata(w http.ResponseWriter, r *http.Request) {
	response.OK(w, projects.All)
}

func (h *Handler) explorerBlocks(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.LatestExplorerBlocks(r.Context(), limitParam(r, 100))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) explorerDayStats(w http.ResponseWriter, r *http.Request) {
	day, err := dayParam(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	stats, err := h.store.DailyExplorerStats(r.Context(), day)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, stats)
}

func (h *Handler) explorerRecentDays(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.RecentExplorerDays(r.Context(), limitParam(r, 7))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) mainnetExplorerBlocks(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.MainnetExplorerBlocks(r.Context(), limitParam(r, 100))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) mainnetExplorerDayStats(w http.ResponseWriter, r *http.Request) {
	day, err := dayParam(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	stats, err := h.store.MainnetDailyExplorerStats(r.Context(), day)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, stats)
}

func (h *Handler) mainnetExplorerRecentDays(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.MainnetRecentExplorerDays(r.Context(), limitParam(r, 7))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) mainnetRecentMessages(w http.ResponseWriter, r *http.Request) {
	protocol, err := protocolParam(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	rows, err := h.store.RecentMainnetMessages(r.Context(), protocol, limitParam(r, 100))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) mainnetBlockMessages(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(chi.URLParam(r, "height"), 10, 32)
	if err != nil {
		response.Error(w, http.StatusBadRequest, errors.New("invalid block height"))
		return
	}
	protocol, err := protocolParam(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	rows, err := h.store.BlockMainnetMessages(r.Context(), protocol, uint32(height), limitParam(r, 500))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) mainnetMessagesByTag(w http.ResponseWriter, r *http.Request) {
	protocol, err := protocolParam(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	key, value, err := tagPairParams(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}
	keys := tagKeyVariants(protocol, key)
	if len(keys) == 0 {
		response.Error(w, http.StatusBadRequest, errors.New("invalid tag key"))
		return
	}
	rows, err := h.store.MainnetMessagesByTag(r.Context(), protocol, keys, value, limitParam(r, 100))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}

func (h *Handler) mainnetIndexingInfo(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.MainnetIndexingInfo(r.Context())
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	response.OK(w, rows)
}
