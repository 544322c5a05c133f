package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/permaweb/atlas/internal/gateway"
	"github.com/permaweb/atlas/internal/models"
)

// TokenStore is the persistence slice the token worker writes through.
type TokenStore interface {
	InsertTokenMessages(ctx context.Context, rows []models.TokenMessageRow) error
	InsertTokenMessageTags(ctx context.Context, rows []models.TokenMessageTagRow) error
	StoreTokenCursor(ctx context.Context, state models.TokenCursorState) error
	LoadTokenCursor(ctx context.Context) (*models.TokenCursorState, error)
}

// TokenGateway is the gateway slice the token worker consumes.
type TokenGateway interface {
	ScanTokenMessages(ctx context.Context, kind gateway.TokenQuery, height uint32, cursor string) (models.MessagePage, error)
	TipHeight(ctx context.Context) (uint64, error)
}

// TokenWorker ingests the AO token's transfer and process-message streams.
// A height commits only after both sub-queries fully drained, so the state
// never records a mid-block position.
type TokenWorker struct {
	gw     TokenGateway
	store  TokenStore
	start  uint32
	logger *slog.Logger

	pageDelay    time.Duration
	subPageDelay time.Duration
	backoffDelay time.Duration
	tipDelay     time.Duration
}

// NewTokenWorker builds the AO token stream worker.
func NewTokenWorker(gw TokenGateway, store TokenStore, start uint32, logger *slog.Logger) *TokenWorker {
	return &TokenWorker{
		gw:           gw,
		store:        store,
		start:        start,
		logger:       logger.With(slog.String("stream", "ao-token")),
		pageDelay:    time.Second,
		subPageDelay: 200 * time.Millisecond,
		backoffDelay: 300 * time.Second,
		tipDelay:     60 * time.Second,
	}
}

// Run drives the token stream until the context ends or a non-retryable
// error surfaces.
func (w *TokenWorker) Run(ctx context.Context) error {
	height := w.start
	state, err := w.store.LoadTokenCursor(ctx)
	if err != nil {
		return err
	}
	if state != nil {
		height = max(state.LastCompleteHeight, w.start) + 1
	}
	w.logger.Info("token stream starting", slog.Uint64("height", uint64(height)))

	tip, err := w.gw.TipHeight(ctx)
	if err != nil {
		tip = uint64(height)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		for uint64(height)+arweaveTipSafeGap > tip {
			if latest, err := w.gw.TipHeight(ctx); err == nil {
				tip = latest
			} else {
				w.logger.Error("tip fetch failed", slog.Any("error", err))
			}
			if uint64(height)+arweaveTipSafeGap > tip {
				w.logger.Info("waiting for tip",
					slog.Uint64("height", uint64(height)), slog.Uint64("tip", tip))
				if err := sleepCtx(ctx, w.tipDelay); err != nil {
					return err
				}
			}
		}

		transfers, err := w.ingest(ctx, gateway.TokenTransfer, height, "transfer")
		if err != nil {
			if isRateLimit(err) || isTransient(err) {
				gatewayErrors.WithLabelValues("ao-token", "transient").Inc()
				w.logger.Error("transfer query failed", slog.Uint64("height", uint64(height)), slog.Any("error", err))
				if err := sleepCtx(ctx, w.backoffDelay); err != nil {
					return err
				}
				continue
			}
			return err
		}
		processMsgs, err := w.ingest(ctx, gateway.TokenProcess, height, "process")
		if err != nil {
			if isRateLimit(err) || isTransient(err) {
				gatewayErrors.WithLabelValues("ao-token", "transient").Inc()
				w.logger.Error("process query failed", slog.Uint64("height", uint64(height)), slog.Any("error", err))
				if err := sleepCtx(ctx, w.backoffDelay); err != nil {
					return err
				}
				continue
			}
			return err
		}

		if err := w.store.StoreTokenCursor(ctx, models.TokenCursorState{
			LastCompleteHeight: height,
			UpdatedAt:          time.Now().UTC(),
		}); err != nil {
			return err
		}
		blocksIndexed.WithLabelValues("ao-token").Inc()
		w.logger.Info("token block stored",
			slog.Uint64("height", uint64(height)),
			slog.Int("transfers", transfers),
			slog.Int("process_msgs", processMsgs))
		height++
		if err := sleepCtx(ctx, w.pageDelay); err != nil {
			return err
		}
	}
}

// ingest drains one sub-query at a height, persisting page by page.
// Pagination stops when the gateway reports no next page or returns no
// cursor; an empty page at the first call is a normal empty block.
func (w *TokenWorker) ingest(ctx context.Context, kind gateway.TokenQuery, height uint32, source string) (int, error) {
	cursor := ""
	total := 0
	for {
		page, err := w.gw.ScanTokenMessages(ctx, kind, height, cursor)
		if err != nil {
			return total, err
		}
		ts := time.Now().UTC()
		messageRows := make([]models.TokenMessageRow, 0, len(page.Messages))
		var tagRows []models.TokenMessageTagRow
		for _, meta := range page.Messages {
			messageRows = append(messageRows, models.TokenMessageRow{
				TS:             ts,
				Source:         source,
				BlockHeight:    meta.BlockHeight,
				BlockTimestamp: meta.BlockTimestamp,
				MsgID:          meta.MsgID,
				Owner:          meta.Owner,
				Recipient:      meta.Recipient,
				BundledIn:      meta.BundledIn,
				DataSize:       meta.DataSize,
			})
			for _, tag := range meta.Tags {
				tagRows = append(tagRows, models.TokenMessageTagRow{
					TS:          ts,
					Source:      source,
					BlockHeight: meta.BlockHeight,
					MsgID:       meta.MsgID,
					TagKey:      tag.Key,
					TagValue:    tag.Value,
				})
			}
		}
		total += len(messageRows)
		if err := w.store.InsertTokenMessages(ctx, messageRows); err != nil {
			return total, err
		}
		if err := w.store.InsertTokenMessageTags(ctx, tagRows); err != nil {
			return total, err
		}
		messagesIndexed.WithLabelValues("ao-token").Add(float64(len(messageRows)))
		if !page.HasNextPage || page.EndCursor == "" {
			return total, nil
		}
		cursor = page.EndCursor
		if err := sleepCtx(ctx, w.subPageDelay); err != nil {
			return total, err
		}
	}
}
