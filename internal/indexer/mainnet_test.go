package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permaweb/atlas/internal/gateway"
	"github.com/permaweb/atlas/internal/models"
)

// errStop is a scripted non-retryable failure that ends a worker run once
// a test's scenario is exhausted.
var errStop = errors.New("script exhausted")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scanResult struct {
	page models.MessagePage
	err  error
}

type fakeMainnetGW struct {
	tip    uint64
	tipErr error
	script []scanResult
	calls  []string // "height:cursor" per scan
}

func (g *fakeMainnetGW) ScanBlockMessages(_ context.Context, _ models.Protocol, height uint32, cursor string) (models.MessagePage, error) {
	g.calls = append(g.calls, fmt.Sprintf("%d:%s", height, cursor))
	if len(g.script) == 0 {
		return models.MessagePage{}, errStop
	}
	next := g.script[0]
	g.script = g.script[1:]
	return next.page, next.err
}

func (g *fakeMainnetGW) TipHeight(context.Context) (uint64, error) {
	return g.tip, g.tipErr
}

type fakeMessageStore struct {
	state      *models.CursorState
	maxIndexed uint32
	events     []string
	cursors    []models.CursorState
}

func (s *fakeMessageStore) InsertMainnetMessages(_ context.Context, rows []models.MessageRow) error {
	s.events = append(s.events, fmt.Sprintf("msgs:%d", len(rows)))
	return nil
}

func (s *fakeMessageStore) InsertMainnetMessageTags(_ context.Context, rows []models.MessageTagRow) error {
	s.events = append(s.events, fmt.Sprintf("tags:%d", len(rows)))
	return nil
}

func (s *fakeMessageStore) StoreCursor(_ context.Context, state models.CursorState) error {
	s.events = append(s.events, fmt.Sprintf("cursor:%d:%s", state.LastCompleteHeight, state.LastCursor))
	s.cursors = append(s.cursors, state)
	return nil
}

func (s *fakeMessageStore) LoadCursor(context.Context, string) (*models.CursorState, error) {
	return s.state, nil
}

func (s *fakeMessageStore) MaxIndexedHeight(context.Context, string) (uint32, error) {
	return s.maxIndexed, nil
}

func newTestMainnetWorker(gw *fakeMainnetGW, store *fakeMessageStore, start uint32) *MainnetWorker {
	w := NewMainnetWorker(gw, store, models.ProtocolA, start, testLogger())
	w.pageDelay = 0
	w.rateLimitDelay = 0
	w.transientDelay = 0
	w.tipDelay = 0
	return w
}

func metaWithTags(id string, height uint32, tags ...models.Tag) models.MessageMeta {
	return models.MessageMeta{
		MsgID:          id,
		Owner:          "owner-" + id,
		BlockHeight:    height,
		BlockTimestamp: 1700000000,
		Tags:           tags,
	}
}

func TestMainnetResume(t *testing.T) {
	tests := map[string]struct {
		state      *models.CursorState
		maxIndexed uint32
		tip        uint64
		wantHeight uint32
		wantCursor string
	}{
		"no state starts at genesis": {
			tip: 2000000, wantHeight: 1594020,
		},
		"mid-block state resumes same height with cursor": {
			state:      &models.CursorState{LastCompleteHeight: 1700000, LastCursor: "c9"},
			tip:        2000000,
			wantHeight: 1700000, wantCursor: "c9",
		},
		"complete state advances one height": {
			state:      &models.CursorState{LastCompleteHeight: 1700000},
			tip:        2000000,
			wantHeight: 1700001,
		},
		"stored height above tip clamps to indexed extent": {
			state:      &models.CursorState{LastCompleteHeight: 1900000, LastCursor: "stale"},
			maxIndexed: 1800000,
			tip:        1750000,
			wantHeight: 1800000,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			gw := &fakeMainnetGW{tip: tc.tip}
			store := &fakeMessageStore{state: tc.state, maxIndexed: tc.maxIndexed}
			w := newTestMainnetWorker(gw, store, 1594020)

			height, cursor, err := w.resume(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.wantHeight, height)
			assert.Equal(t, tc.wantCursor, cursor)
		})
	}
}

func TestMainnetWorkerPersistsMessagesBeforeCursor(t *testing.T) {
	gw := &fakeMainnetGW{
		tip: 2000000,
		script: []scanResult{{
			page: models.MessagePage{
				Messages: []models.MessageMeta{
					metaWithTags("m1", 1700001, models.Tag{Key: "action", Value: "transfer"}),
					metaWithTags("m2", 1700001, models.Tag{Key: "action", Value: "eval"}, models.Tag{Key: "type", Value: "process"}),
				},
			},
		}},
	}
	store := &fakeMessageStore{state: &models.CursorState{LastCompleteHeight: 1700000}}
	w := newTestMainnetWorker(gw, store, 1594020)

	err := w.Run(context.Background())
	require.ErrorIs(t, err, errStop)

	assert.Equal(t, []string{"msgs:2", "tags:3", "cursor:1700001:"}, store.events)
	// A drained block advances the stream.
	assert.Equal(t, []string{"1700001:", "1700002:"}, gw.calls)
}

func TestMainnetWorkerMidBlockPagination(t *testing.T) {
	gw := &fakeMainnetGW{
		tip: 2000000,
		script: []scanResult{
			{page: models.MessagePage{
				Messages:    []models.MessageMeta{metaWithTags("m1", 1700001)},
				HasNextPage: true,
				EndCursor:   "c1",
			}},
			{page: models.MessagePage{
				Messages: []models.MessageMeta{metaWithTags("m2", 1700001)},
			}},
		},
	}
	store := &fakeMessageStore{state: &models.CursorState{LastCompleteHeight: 1700000}}
	w := newTestMainnetWorker(gw, store, 1594020)

	err := w.Run(context.Background())
	require.ErrorIs(t, err, errStop)

	// Second page resumes at the same height with the stored cursor, and the
	// mid-block state is resumable.
	assert.Equal(t, []string{"1700001:", "1700001:c1", "1700002:"}, gw.calls)
	require.Len(t, store.cursors, 2)
	assert.Equal(t, "c1", store.cursors[0].LastCursor)
	assert.Equal(t, uint32(1700001), store.cursors[0].LastCompleteHeight)
	assert.Empty(t, store.cursors[1].LastCursor)
}

func TestMainnetWorkerEmptyBlockCommitsAndAdvances(t *testing.T) {
	gw := &fakeMainnetGW{
		tip:    2000000,
		script: []scanResult{{err: gateway.ErrEmptyBlock}},
	}
	store := &fakeMessageStore{state: &models.CursorState{LastCompleteHeight: 1700000}}
	w := newTestMainnetWorker(gw, store, 1594020)

	err := w.Run(context.Background())
	require.ErrorIs(t, err, errStop)

	assert.Equal(t, []string{"cursor:1700001:"}, store.events)
	assert.Equal(t, []string{"1700001:", "1700002:"}, gw.calls)
}

func TestMainnetWorkerRetriesRateLimitAndTransient(t *testing.T) {
	gw := &fakeMainnetGW{
		tip: 2000000,
		script: []scanResult{
			{err: fmt.Errorf("http status: 429")},
			{err: fmt.Errorf("http status: 503")},
			{err: gateway.ErrEmptyBlock},
		},
	}
	store := &fakeMessageStore{state: &models.CursorState{LastCompleteHeight: 1700000}}
	w := newTestMainnetWorker(gw, store, 1594020)

	err := w.Run(context.Background())
	require.ErrorIs(t, err, errStop)

	// Same height retried through both failures.
	assert.Equal(t, []string{"1700001:", "1700001:", "1700001:", "1700002:"}, gw.calls)
}

func TestMainnetWorkerSurfacesUnknownErrors(t *testing.T) {
	boom := errors.New("schema drift")
	gw := &fakeMainnetGW{
		tip:    2000000,
		script: []scanResult{{err: boom}},
	}
	store := &fakeMessageStore{}
	w := newTestMainnetWorker(gw, store, 1594020)

	err := w.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Empty(t, store.events)
}
