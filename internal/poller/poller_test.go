package poller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/tablesync/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

type result struct {
	snap *protocol.RoomSnapshot
	err  error
}

// scriptedFetcher returns its results in order and repeats the last one.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []result
	calls   int
}

func (f *scriptedFetcher) RoomState(_ context.Context, roomID string) (*protocol.RoomSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	if r.snap != nil {
		snap := *r.snap
		snap.RoomID = roomID
		return &snap, nil
	}
	return nil, r.err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingHandler struct {
	mu        sync.Mutex
	snapshots []protocol.RoomSnapshot
	entries   int
	failures  []error
}

func (h *recordingHandler) SnapshotReceived(snap protocol.RoomSnapshot, entered bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshots = append(h.snapshots, snap)
	if entered {
		h.entries++
	}
}

func (h *recordingHandler) PollFailed(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, err)
}

func (h *recordingHandler) counts() (snapshots, entries, failures int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snapshots), h.entries, len(h.failures)
}

func lobby() *protocol.RoomSnapshot {
	return &protocol.RoomSnapshot{Players: []protocol.Player{{ID: "p1", Name: "Ana"}}}
}

func started() *protocol.RoomSnapshot {
	return &protocol.RoomSnapshot{
		Players:     []protocol.Player{{ID: "p1", Name: "Ana"}, {ID: "p2", Name: "Rui"}},
		GameStarted: true,
		GameState:   &protocol.GameState{CurrentPlayerID: "p1"},
	}
}

func TestTickEntersGameOnce(t *testing.T) {
	fetcher := &scriptedFetcher{results: []result{{snap: lobby()}, {snap: started()}, {snap: started()}}}
	handler := &recordingHandler{}
	p := New(fetcher, "room-1", handler, quartz.NewMock(t), testLogger(), WithContinueInGame(true))

	assert.False(t, p.Tick(context.Background()))
	assert.False(t, p.Entered())

	assert.False(t, p.Tick(context.Background()))
	assert.True(t, p.Entered())
	assert.Equal(t, Game, p.Mode())

	assert.False(t, p.Tick(context.Background()))

	snapshots, entries, failures := handler.counts()
	assert.Equal(t, 3, snapshots)
	assert.Equal(t, 1, entries)
	assert.Zero(t, failures)
	assert.Equal(t, "room-1", handler.snapshots[0].RoomID)
}

func TestTickStopsInLobbyMode(t *testing.T) {
	fetcher := &scriptedFetcher{results: []result{{snap: started()}}}
	handler := &recordingHandler{}
	p := New(fetcher, "room-1", handler, quartz.NewMock(t), testLogger())

	assert.True(t, p.Tick(context.Background()), "first fetch already in game")
	assert.Equal(t, Lobby, p.Mode())

	_, entries, _ := handler.counts()
	assert.Equal(t, 1, entries)
}

func TestTickInconsistentSnapshotDoesNotEnter(t *testing.T) {
	inconsistent := &protocol.RoomSnapshot{GameStarted: true}
	fetcher := &scriptedFetcher{results: []result{{snap: inconsistent}}}
	handler := &recordingHandler{}
	p := New(fetcher, "room-1", handler, quartz.NewMock(t), testLogger())

	assert.False(t, p.Tick(context.Background()))

	snapshots, entries, _ := handler.counts()
	assert.Equal(t, 1, snapshots, "snapshot is still delivered")
	assert.Zero(t, entries)
}

func TestTickReportsFailures(t *testing.T) {
	boom := errors.New("connection refused")
	fetcher := &scriptedFetcher{results: []result{{err: boom}, {snap: lobby()}}}
	handler := &recordingHandler{}
	p := New(fetcher, "room-1", handler, quartz.NewMock(t), testLogger())

	assert.False(t, p.Tick(context.Background()))
	assert.False(t, p.Tick(context.Background()))

	snapshots, _, failures := handler.counts()
	assert.Equal(t, 1, snapshots)
	require.Equal(t, 1, failures)
	assert.ErrorIs(t, handler.failures[0], boom)
}

func waitForTimer(t *testing.T, clock *quartz.Mock) time.Duration {
	t.Helper()
	var next time.Duration
	require.Eventually(t, func() bool {
		d, ok := clock.Peek()
		next = d
		return ok
	}, 2*time.Second, time.Millisecond)
	return next
}

func TestRunSwitchesToGameInterval(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	fetcher := &scriptedFetcher{results: []result{{snap: lobby()}, {err: errors.New("timeout")}, {snap: started()}}}
	handler := &recordingHandler{}
	p := New(fetcher, "room-1", handler, clock, testLogger(), WithContinueInGame(true))

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	// Immediate fetch, then the lobby cadence.
	assert.Equal(t, DefaultLobbyInterval, waitForTimer(t, clock))
	clock.Advance(DefaultLobbyInterval).MustWait(ctx)

	// A failed fetch keeps the lobby cadence.
	assert.Equal(t, DefaultLobbyInterval, waitForTimer(t, clock))
	clock.Advance(DefaultLobbyInterval).MustWait(ctx)

	// Entering the game switches cadence.
	assert.Equal(t, DefaultGameInterval, waitForTimer(t, clock))
	clock.Advance(DefaultGameInterval).MustWait(ctx)
	waitForTimer(t, clock)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	snapshots, entries, failures := handler.counts()
	assert.Equal(t, 3, snapshots)
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, failures)
}

func TestRunReturnsAfterEnteringInLobbyMode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	fetcher := &scriptedFetcher{results: []result{{snap: lobby()}, {snap: lobby()}, {snap: started()}}}
	handler := &recordingHandler{}
	p := New(fetcher, "room-1", handler, quartz.NewReal(), testLogger(),
		WithIntervals(5*time.Millisecond, 5*time.Millisecond),
		WithJitter(time.Millisecond, 1))

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, 3, fetcher.Calls())

	_, entries, _ := handler.counts()
	assert.Equal(t, 1, entries)
}
