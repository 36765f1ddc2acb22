package dispatch

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/lox/tablesync/internal/botflow"
	"github.com/lox/tablesync/internal/protocol"
	"github.com/lox/tablesync/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

// fakeAPI answers every call with the configured responses and records what
// it was asked.
type fakeAPI struct {
	join      protocol.JoinRoomResponse
	action    protocol.ActionResponse
	start     protocol.StartGameResponse
	bots      []int
	err       error
	calls     []string
	lastName  string
	lastSeats []int
	lastCard  protocol.Card
}

func (f *fakeAPI) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeAPI) JoinRoom(_ context.Context, name, roomID string) (*protocol.JoinRoomResponse, error) {
	f.lastName = name
	if err := f.record("join:" + roomID); err != nil {
		return nil, err
	}
	resp := f.join
	return &resp, nil
}

func (f *fakeAPI) CreateRoom(_ context.Context, name string) (*protocol.JoinRoomResponse, error) {
	f.lastName = name
	if err := f.record("create"); err != nil {
		return nil, err
	}
	resp := f.join
	return &resp, nil
}

func (f *fakeAPI) RoomState(_ context.Context, roomID string) (*protocol.RoomSnapshot, error) {
	if err := f.record("state:" + roomID); err != nil {
		return nil, err
	}
	return &protocol.RoomSnapshot{RoomID: roomID}, nil
}

func (f *fakeAPI) PlayCard(_ context.Context, _, _ string, card protocol.Card) (*protocol.ActionResponse, error) {
	f.lastCard = card
	return f.answer("play")
}

func (f *fakeAPI) StartGame(_ context.Context, name, _ string) (*protocol.StartGameResponse, error) {
	f.lastName = name
	if err := f.record("start"); err != nil {
		return nil, err
	}
	resp := f.start
	return &resp, nil
}

func (f *fakeAPI) MarkReady(context.Context, string) (*protocol.ActionResponse, error) {
	return f.answer("ready")
}

func (f *fakeAPI) NewRound(context.Context, string) (*protocol.ActionResponse, error) {
	return f.answer("new_round")
}

func (f *fakeAPI) AddBot(context.Context, int) (*protocol.ActionResponse, error) {
	return f.answer("add_bot")
}

func (f *fakeAPI) RemoveBot(context.Context, int) (*protocol.ActionResponse, error) {
	return f.answer("remove_bot")
}

func (f *fakeAPI) ListBots(context.Context) (*protocol.BotListResponse, error) {
	if err := f.record("list_bots"); err != nil {
		return nil, err
	}
	return &protocol.BotListResponse{Bots: f.bots}, nil
}

func (f *fakeAPI) StartBotRecognition(_ context.Context, seats []int) (*protocol.ActionResponse, error) {
	f.lastSeats = seats
	return f.answer("recognition")
}

func (f *fakeAPI) answer(call string) (*protocol.ActionResponse, error) {
	if err := f.record(call); err != nil {
		return nil, err
	}
	resp := f.action
	return &resp, nil
}

type fakeTarget struct {
	NopTarget
	joined  []string
	played  []protocol.Card
	games   []string
	rounds  []string
	added   []int
	removed []int
	listed  []int
	state   botflow.State
	starts  int
}

func (t *fakeTarget) Joined(playerID, roomID string) error {
	t.joined = append(t.joined, playerID+"@"+roomID)
	return nil
}
func (t *fakeTarget) CardPlayed(c protocol.Card) error { t.played = append(t.played, c); return nil }
func (t *fakeTarget) GameStarted(id string) error      { t.games = append(t.games, id); return nil }
func (t *fakeTarget) RoundStarted(id string) error     { t.rounds = append(t.rounds, id); return nil }
func (t *fakeTarget) BotAdded(seat int) error          { t.added = append(t.added, seat); return nil }
func (t *fakeTarget) BotRemoved(seat int) error        { t.removed = append(t.removed, seat); return nil }
func (t *fakeTarget) BotsListed(seats []int) error     { t.listed = seats; return nil }
func (t *fakeTarget) BotState() botflow.State          { return t.state }

func (t *fakeTarget) RecognitionStarted() error {
	t.starts++
	t.state.Phase = botflow.PhaseRecognizing
	return nil
}

func newDispatcher(api *fakeAPI, target *fakeTarget) *Dispatcher {
	return New(api, target, testLogger(), WithNameSeed(1))
}

func TestJoinOrCreate(t *testing.T) {
	t.Run("blank room creates", func(t *testing.T) {
		api := &fakeAPI{join: protocol.JoinRoomResponse{Success: true, PlayerID: "p1", RoomID: "r9"}}
		target := &fakeTarget{}

		resp, err := newDispatcher(api, target).JoinOrCreate(context.Background(), "Ana", "  ")
		require.NoError(t, err)
		assert.Equal(t, "r9", resp.RoomID)
		assert.Equal(t, []string{"create"}, api.calls)
		assert.Equal(t, []string{"p1@r9"}, target.joined)
	})

	t.Run("room id joins", func(t *testing.T) {
		api := &fakeAPI{join: protocol.JoinRoomResponse{Success: true, PlayerID: "p2"}}
		target := &fakeTarget{}

		_, err := newDispatcher(api, target).JoinOrCreate(context.Background(), "Ana", "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"join:r1"}, api.calls)
		assert.Equal(t, "Ana", api.lastName)
		assert.Equal(t, []string{"p2@r1"}, target.joined, "room id falls back to the requested one")
	})

	t.Run("blank name is generated", func(t *testing.T) {
		api := &fakeAPI{join: protocol.JoinRoomResponse{Success: true, PlayerID: "p3", RoomID: "r1"}}

		_, err := newDispatcher(api, &fakeTarget{}).JoinOrCreate(context.Background(), "", "r1")
		require.NoError(t, err)
		assert.Regexp(t, regexp.MustCompile(`^Player[1-9][0-9]{3}$`), api.lastName)
	})

	t.Run("refusal", func(t *testing.T) {
		api := &fakeAPI{join: protocol.JoinRoomResponse{Success: false}}
		target := &fakeTarget{}

		_, err := newDispatcher(api, target).JoinOrCreate(context.Background(), "Ana", "r1")
		var rejected *RejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, "join room", rejected.Op)
		assert.Empty(t, target.joined)
	})
}

func TestDefaultPlayerNameRange(t *testing.T) {
	r := randutil.New(3)
	for range 1000 {
		assert.Regexp(t, `^Player\d{4}$`, DefaultPlayerName(r))
	}
}

func TestRejectedActionsLeaveTargetUntouched(t *testing.T) {
	api := &fakeAPI{
		action: protocol.ActionResponse{Success: false, Message: "not your turn"},
		start:  protocol.StartGameResponse{Success: false, Message: "camera busy"},
	}
	target := &fakeTarget{state: botflow.State{Phase: botflow.PhaseCardsDealt, Seats: []int{2}}}
	d := newDispatcher(api, target)
	ctx := context.Background()

	tests := []struct {
		op  string
		msg string
		run func() error
	}{
		{"play card", "not your turn", func() error { return d.PlayCard(ctx, "p1", "r1", protocol.Card{ID: "c1"}) }},
		{"start game", "camera busy", func() error { _, err := d.StartVisionGame(ctx, "Ana", ""); return err }},
		{"mark ready", "not your turn", func() error { return d.MarkReady(ctx, "g1") }},
		{"new round", "not your turn", func() error { return d.StartRound(ctx, "g1") }},
		{"add bot", "not your turn", func() error { return d.AddBot(ctx, 2) }},
		{"remove bot", "not your turn", func() error { return d.RemoveBot(ctx, 2) }},
		{"start recognition", "not your turn", func() error { return d.StartRecognition(ctx) }},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			err := tt.run()
			var rejected *RejectedError
			require.ErrorAs(t, err, &rejected)
			assert.Equal(t, tt.op, rejected.Op)
			assert.Equal(t, tt.msg, rejected.Message)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	assert.Empty(t, target.played)
	assert.Empty(t, target.games)
	assert.Empty(t, target.rounds)
	assert.Empty(t, target.added)
	assert.Empty(t, target.removed)
}

func TestAcceptedActionsReachTarget(t *testing.T) {
	api := &fakeAPI{
		action: protocol.ActionResponse{Success: true},
		start:  protocol.StartGameResponse{Success: true, GameID: "g7"},
		bots:   []int{2, 4},
	}
	target := &fakeTarget{}
	d := newDispatcher(api, target)
	ctx := context.Background()

	card := protocol.Card{ID: "c1", Suit: "hearts", Rank: "7"}
	require.NoError(t, d.PlayCard(ctx, "p1", "r1", card))
	assert.Equal(t, []protocol.Card{card}, target.played)
	assert.Equal(t, card, api.lastCard)

	gameID, err := d.StartVisionGame(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "g7", gameID)
	assert.Equal(t, []string{"g7"}, target.games)
	assert.Regexp(t, `^Player\d{4}$`, api.lastName)

	require.NoError(t, d.MarkReady(ctx, "g7"))
	require.NoError(t, d.StartRound(ctx, "g7"))
	assert.Equal(t, []string{"g7"}, target.rounds)

	require.NoError(t, d.AddBot(ctx, 3))
	require.NoError(t, d.RemoveBot(ctx, 3))
	assert.Equal(t, []int{3}, target.added)
	assert.Equal(t, []int{3}, target.removed)

	seats, err := d.ListBots(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, seats)
	assert.Equal(t, []int{2, 4}, target.listed)

	snap, err := d.Snapshot(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", snap.RoomID)
}

func TestStartGameWithoutIDIsRejected(t *testing.T) {
	api := &fakeAPI{start: protocol.StartGameResponse{Success: true}}
	target := &fakeTarget{}

	_, err := newDispatcher(api, target).StartVisionGame(context.Background(), "Ana", "")
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Empty(t, target.games)
}

func TestStartRecognitionGatedOnPhase(t *testing.T) {
	for _, phase := range []botflow.Phase{botflow.PhaseNone, botflow.PhaseAdded, botflow.PhaseRecognizing, botflow.PhaseReady, botflow.PhasePlaying} {
		t.Run(phase.String(), func(t *testing.T) {
			api := &fakeAPI{action: protocol.ActionResponse{Success: true}}
			target := &fakeTarget{state: botflow.State{Phase: phase, Seats: []int{2}}}

			err := newDispatcher(api, target).StartRecognition(context.Background())
			assert.ErrorIs(t, err, botflow.ErrPhase)
			assert.Empty(t, api.calls, "nothing is sent")
		})
	}

	api := &fakeAPI{action: protocol.ActionResponse{Success: true}}
	target := &fakeTarget{state: botflow.State{Phase: botflow.PhaseCardsDealt, Seats: []int{2, 4}}}
	d := newDispatcher(api, target)
	require.NoError(t, d.StartRecognition(context.Background()))
	assert.Equal(t, []int{2, 4}, api.lastSeats)
	assert.Equal(t, 1, target.starts)
	assert.Equal(t, botflow.PhaseRecognizing, target.state.Phase)

	calls := len(api.calls)
	assert.ErrorIs(t, d.StartRecognition(context.Background()), botflow.ErrPhase, "a second request is refused locally")
	assert.Len(t, api.calls, calls)
	assert.Equal(t, 1, target.starts)
}

func TestRejectedRecognitionKeepsPhase(t *testing.T) {
	api := &fakeAPI{action: protocol.ActionResponse{Success: false, Message: "no trump shown"}}
	target := &fakeTarget{state: botflow.State{Phase: botflow.PhaseCardsDealt, Seats: []int{3}}}

	err := newDispatcher(api, target).StartRecognition(context.Background())
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "no trump shown", rejected.Message)
	assert.Zero(t, target.starts)
	assert.Equal(t, botflow.PhaseCardsDealt, target.state.Phase)
}

func TestInvalidBotSeat(t *testing.T) {
	api := &fakeAPI{action: protocol.ActionResponse{Success: true}}
	d := newDispatcher(api, &fakeTarget{})

	assert.ErrorIs(t, d.AddBot(context.Background(), 1), botflow.ErrSeat)
	assert.ErrorIs(t, d.RemoveBot(context.Background(), 5), botflow.ErrSeat)
	assert.Empty(t, api.calls)
}

func TestTransportErrorsPassThrough(t *testing.T) {
	boom := errors.New("connection reset")
	api := &fakeAPI{err: boom}
	target := &fakeTarget{}
	d := newDispatcher(api, target)

	_, err := d.JoinOrCreate(context.Background(), "Ana", "r1")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, d.StartRound(context.Background(), "g1"), boom)
	_, err = d.ListBots(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, target.listed)
}
