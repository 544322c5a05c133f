package indexer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/permaweb/atlas/internal/gateway"
	"github.com/permaweb/atlas/internal/models"
)

// MessageStore is the persistence slice the mainnet worker writes through.
type MessageStore interface {
	InsertMainnetMessages(ctx context.Context, rows []models.MessageRow) error
	InsertMainnetMessageTags(ctx context.Context, rows []models.MessageTagRow) error
	StoreCursor(ctx context.Context, state models.CursorState) error
	LoadCursor(ctx context.Context, protocol string) (*models.CursorState, error)
	MaxIndexedHeight(ctx context.Context, protocol string) (uint32, error)
}

// MainnetGateway is the gateway slice the mainnet worker consumes.
type MainnetGateway interface {
	ScanBlockMessages(ctx context.Context, variant models.Protocol, height uint32, cursor string) (models.MessagePage, error)
	TipHeight(ctx context.Context) (uint64, error)
}

// MainnetWorker ingests one protocol variant's message stream block by
// block, committing a resumable cursor after every page.
type MainnetWorker struct {
	gw      MainnetGateway
	store   MessageStore
	variant models.Protocol
	start   uint32
	logger  *slog.Logger

	// pacing, shortened in tests
	pageDelay      time.Duration
	rateLimitDelay time.Duration
	transientDelay time.Duration
	tipDelay       time.Duration
}

// NewMainnetWorker builds a worker for one protocol stream.
func NewMainnetWorker(gw MainnetGateway, store MessageStore, variant models.Protocol, start uint32, logger *slog.Logger) *MainnetWorker {
	return &MainnetWorker{
		gw:             gw,
		store:          store,
		variant:        variant,
		start:          start,
		logger:         logger.With(slog.String("stream", "mainnet-"+string(variant))),
		pageDelay:      time.Second,
		rateLimitDelay: 5 * time.Second,
		transientDelay: time.Second,
		tipDelay:       60 * time.Second,
	}
}

// resume computes the starting height and cursor from the persisted stream
// state. A stored height above the current network tip means the state row
// outran a gateway regression; the height is clamped back to the persisted
// message extent and the cursor dropped.
func (w *MainnetWorker) resume(ctx context.Context) (uint32, string, error) {
	state, err := w.store.LoadCursor(ctx, string(w.variant))
	if err != nil {
		return 0, "", err
	}
	if state == nil {
		return w.start, "", nil
	}
	height := max(state.LastCompleteHeight, w.start)
	cursor := state.LastCursor
	if tip, err := w.gw.TipHeight(ctx); err == nil && uint64(height) > tip {
		indexed, err := w.store.MaxIndexedHeight(ctx, string(w.variant))
		if err != nil {
			return 0, "", err
		}
		w.logger.Warn("stored height above network tip, clamping",
			slog.Uint64("stored", uint64(height)),
			slog.Uint64("tip", tip),
			slog.Uint64("clamped", uint64(indexed)))
		return max(indexed, w.start), "", nil
	}
	if cursor != "" {
		return height, cursor, nil
	}
	return height + 1, "", nil
}

// Run drives the stream until the context ends or a non-retryable error
// surfaces.
func (w *MainnetWorker) Run(ctx context.Context) error {
	height, cursor, err := w.resume(ctx)
	if err != nil {
		return err
	}
	w.logger.Info("mainnet stream starting", slog.Uint64("height", uint64(height)))

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
				tipGauge.Set(float64(tip))
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

		page, err := w.gw.ScanBlockMessages(ctx, w.variant, height, cursor)
		if err != nil {
			if errors.Is(err, gateway.ErrEmptyBlock) {
				cursor = ""
				if err := w.store.StoreCursor(ctx, models.CursorState{
					UpdatedAt:          time.Now().UTC(),
					Protocol:           string(w.variant),
					LastCompleteHeight: height,
				}); err != nil {
					return err
				}
				blocksIndexed.WithLabelValues("mainnet-" + string(w.variant)).Inc()
				height++
				continue
			}
			switch {
			case isRateLimit(err):
				gatewayErrors.WithLabelValues("mainnet-"+string(w.variant), "rate_limit").Inc()
				w.logger.Warn("rate limited", slog.Uint64("height", uint64(height)))
				if err := sleepCtx(ctx, w.rateLimitDelay); err != nil {
					return err
				}
			case isTransient(err):
				gatewayErrors.WithLabelValues("mainnet-"+string(w.variant), "transient").Inc()
				w.logger.Error("fetch failed", slog.Uint64("height", uint64(height)), slog.Any("error", err))
				if err := sleepCtx(ctx, w.transientDelay); err != nil {
					return err
				}
			default:
				return err
			}
			continue
		}

		ts := time.Now().UTC()
		messageRows := make([]models.MessageRow, 0, len(page.Messages))
		var tagRows []models.MessageTagRow
		for _, meta := range page.Messages {
			messageRows = append(messageRows, models.MessageRow{
				TS:             ts,
				Protocol:       string(w.variant),
				BlockHeight:    meta.BlockHeight,
				BlockTimestamp: meta.BlockTimestamp,
				MsgID:          meta.MsgID,
				Owner:          meta.Owner,
				Recipient:      meta.Recipient,
				BundledIn:      meta.BundledIn,
				DataSize:       meta.DataSize,
			})
			for _, tag := range meta.Tags {
				tagRows = append(tagRows, models.MessageTagRow{
					TS:          ts,
					Protocol:    string(w.variant),
					BlockHeight: meta.BlockHeight,
					MsgID:       meta.MsgID,
					TagKey:      tag.Key,
					TagValue:    tag.Value,
				})
			}
		}
		if err := w.store.InsertMainnetMessages(ctx, messageRows); err != nil {
			return err
		}
		if err := w.store.InsertMainnetMessageTags(ctx, tagRows); err != nil {
			return err
		}
		messagesIndexed.WithLabelValues("mainnet-" + string(w.variant)).Add(float64(len(messageRows)))

		if page.HasNextPage {
			cursor = page.EndCursor
		} else {
			cursor = ""
		}
		if err := w.store.StoreCursor(ctx, models.CursorState{
			UpdatedAt:          ts,
			Protocol:           string(w.variant),
			LastCompleteHeight: height,
			LastCursor:         cursor,
		}); err != nil {
			return err
		}
		w.logger.Info("block page stored",
			slog.Uint64("height", uint64(height)),
			slog.Int("messages", len(messageRows)))
		if cursor == "" {
			blocksIndexed.WithLabelValues("mainnet-" + string(w.variant)).Inc()
			height++
		}
		if err := sleepCtx(ctx, w.pageDelay); err != nil {
			return err
		}
	}
}
