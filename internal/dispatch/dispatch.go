// Package dispatch sends player and bot actions to the server and folds the
// accepted ones back into the session.
package dispatch

import (
	"context"
	"fmt"
	rand "math/rand/v2"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/tablesync/internal/botflow"
	"github.com/lox/tablesync/internal/protocol"
	"github.com/lox/tablesync/internal/randutil"
)

// API is the request/response transport.
type API interface {
	JoinRoom(ctx context.Context, playerName, roomID string) (*protocol.JoinRoomResponse, error)
	CreateRoom(ctx context.Context, playerName string) (*protocol.JoinRoomResponse, error)
	RoomState(ctx context.Context, roomID string) (*protocol.RoomSnapshot, error)
	PlayCard(ctx context.Context, playerID, roomID string, card protocol.Card) (*protocol.ActionResponse, error)
	StartGame(ctx context.Context, playerName, roomID string) (*protocol.StartGameResponse, error)
	MarkReady(ctx context.Context, gameID string) (*protocol.ActionResponse, error)
	NewRound(ctx context.Context, gameID string) (*protocol.ActionResponse, error)
	AddBot(ctx context.Context, seat int) (*protocol.ActionResponse, error)
	RemoveBot(ctx context.Context, seat int) (*protocol.ActionResponse, error)
	ListBots(ctx context.Context) (*protocol.BotListResponse, error)
	StartBotRecognition(ctx context.Context, seats []int) (*protocol.ActionResponse, error)
}

// Target receives accepted actions. The session implements it.
type Target interface {
	Joined(playerID, roomID string) error
	CardPlayed(card protocol.Card) error
	GameStarted(gameID string) error
	RoundStarted(gameID string) error
	BotAdded(seat int) error
	BotRemoved(seat int) error
	BotsListed(seats []int) error
	RecognitionStarted() error
	BotState() botflow.State
}

// RejectedError is a request the server answered with success=false.
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return e.Op + ": rejected by server"
	}
	return fmt.Sprintf("%s: rejected by server: %s", e.Op, e.Message)
}

// Dispatcher issues actions. Nothing is retried.
type Dispatcher struct {
	api    API
	target Target
	logger *log.Logger
	names  *rand.Rand
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithNameSeed fixes the generator for default player names.
func WithNameSeed(seed int64) Option {
	return func(d *Dispatcher) {
		d.names = randutil.New(seed)
	}
}

// New creates a dispatcher. A nil target discards accepted actions.
func New(api API, target Target, logger *log.Logger, opts ...Option) *Dispatcher {
	if target == nil {
		target = NopTarget{}
	}
	d := &Dispatcher{
		api:    api,
		target: target,
		logger: logger.WithPrefix("dispatch"),
		names:  randutil.New(time.Now().UnixNano()),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DefaultPlayerName returns "Player" followed by four digits.
func DefaultPlayerName(r *rand.Rand) string {
	return fmt.Sprintf("Player%d", 1000+r.IntN(9000))
}

// JoinOrCreate joins roomID, or creates a room when roomID is blank. A blank
// player name is replaced with a generated one.
func (d *Dispatcher) JoinOrCreate(ctx context.Context, playerName, roomID string) (*protocol.JoinRoomResponse, error) {
	playerName = strings.TrimSpace(playerName)
	if playerName == "" {
		playerName = DefaultPlayerName(d.names)
	}
	roomID = strings.TrimSpace(roomID)

	var (
		resp *protocol.JoinRoomResponse
		err  error
		op   = "join room"
	)
	if roomID == "" {
		op = "create room"
		resp, err = d.api.CreateRoom(ctx, playerName)
	} else {
		resp, err = d.api.JoinRoom(ctx, playerName, roomID)
	}
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &RejectedError{Op: op}
	}
	if resp.RoomID == "" {
		resp.RoomID = roomID
	}

	d.logger.Info("Joined room", "room", resp.RoomID, "player", resp.PlayerID, "name", playerName)
	return resp, d.target.Joined(resp.PlayerID, resp.RoomID)
}

// Snapshot fetches the room state once.
func (d *Dispatcher) Snapshot(ctx context.Context, roomID string) (*protocol.RoomSnapshot, error) {
	return d.api.RoomState(ctx, roomID)
}

func (d *Dispatcher) PlayCard(ctx context.Context, playerID, roomID string, card protocol.Card) error {
	resp, err := d.api.PlayCard(ctx, playerID, roomID, card)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RejectedError{Op: "play card", Message: resp.Message}
	}
	d.logger.Info("Card played", "card", card.ID, "room", roomID)
	return d.target.CardPlayed(card)
}

// StartVisionGame starts a camera-driven game and returns its id.
func (d *Dispatcher) StartVisionGame(ctx context.Context, playerName, roomID string) (string, error) {
	if strings.TrimSpace(playerName) == "" {
		playerName = DefaultPlayerName(d.names)
	}
	resp, err := d.api.StartGame(ctx, playerName, roomID)
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", &RejectedError{Op: "start game", Message: resp.Message}
	}
	if resp.GameID == "" {
		return "", &RejectedError{Op: "start game", Message: "no game id in answer"}
	}
	d.logger.Info("Vision game started", "game", resp.GameID, "message", resp.Message)
	return resp.GameID, d.target.GameStarted(resp.GameID)
}

// MarkReady tells the server the trump card has left the camera view.
func (d *Dispatcher) MarkReady(ctx context.Context, gameID string) error {
	resp, err := d.api.MarkReady(ctx, gameID)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RejectedError{Op: "mark ready", Message: resp.Message}
	}
	d.logger.Info("Marked ready", "game", gameID)
	return nil
}

func (d *Dispatcher) StartRound(ctx context.Context, gameID string) error {
	resp, err := d.api.NewRound(ctx, gameID)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RejectedError{Op: "new round", Message: resp.Message}
	}
	d.logger.Info("New round started", "game", gameID)
	return d.target.RoundStarted(gameID)
}

func (d *Dispatcher) AddBot(ctx context.Context, seat int) error {
	if !botflow.ValidSeat(seat) {
		return fmt.Errorf("add bot: %w: %d", botflow.ErrSeat, seat)
	}
	resp, err := d.api.AddBot(ctx, seat)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RejectedError{Op: "add bot", Message: resp.Message}
	}
	d.logger.Info("Bot added", "seat", seat)
	return d.target.BotAdded(seat)
}

func (d *Dispatcher) RemoveBot(ctx context.Context, seat int) error {
	if !botflow.ValidSeat(seat) {
		return fmt.Errorf("remove bot: %w: %d", botflow.ErrSeat, seat)
	}
	resp, err := d.api.RemoveBot(ctx, seat)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RejectedError{Op: "remove bot", Message: resp.Message}
	}
	d.logger.Info("Bot removed", "seat", seat)
	return d.target.BotRemoved(seat)
}

// ListBots asks the server for the bot seats and reconciles the session.
func (d *Dispatcher) ListBots(ctx context.Context) ([]int, error) {
	resp, err := d.api.ListBots(ctx)
	if err != nil {
		return nil, err
	}
	return resp.Bots, d.target.BotsListed(resp.Bots)
}

// StartRecognition asks the server to recognise the bot cards. It is only
// sent once cards were dealt and nothing else has happened since.
func (d *Dispatcher) StartRecognition(ctx context.Context) error {
	state := d.target.BotState()
	if state.Phase != botflow.PhaseCardsDealt {
		return fmt.Errorf("start recognition: %w: phase is %s", botflow.ErrPhase, state.Phase)
	}
	resp, err := d.api.StartBotRecognition(ctx, state.Seats)
	if err != nil {
		return err
	}
	if !resp.Success {
		return &RejectedError{Op: "start recognition", Message: resp.Message}
	}
	d.logger.Info("Bot recognition requested", "seats", state.Seats)
	return d.target.RecognitionStarted()
}

// NopTarget accepts every action and keeps no state. One-shot commands use
// it.
type NopTarget struct{}

func (NopTarget) Joined(string, string) error    { return nil }
func (NopTarget) CardPlayed(protocol.Card) error { return nil }
func (NopTarget) GameStarted(string) error       { return nil }
func (NopTarget) RoundStarted(string) error      { return nil }
func (NopTarget) BotAdded(int) error             { return nil }
func (NopTarget) BotRemoved(int) error           { return nil }
func (NopTarget) BotsListed([]int) error         { return nil }
func (NopTarget) RecognitionStarted() error      { return nil }
func (NopTarget) BotState() botflow.State        { return botflow.State{} }
