// Package poller fetches the room snapshot on a fixed cadence and detects the
// lobby to game transition.
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/tablesync/internal/protocol"
	"github.com/lox/tablesync/internal/randutil"
)

const (
	DefaultLobbyInterval = 1000 * time.Millisecond
	DefaultGameInterval  = 900 * time.Millisecond
)

const clockTag = "poller"

// Mode selects the polling cadence.
type Mode int

const (
	Lobby Mode = iota
	Game
)

func (m Mode) String() string {
	if m == Game {
		return "game"
	}
	return "lobby"
}

// Fetcher loads the current room snapshot.
type Fetcher interface {
	RoomState(ctx context.Context, roomID string) (*protocol.RoomSnapshot, error)
}

// Handler receives poll results. Calls are made from the polling goroutine,
// one at a time.
type Handler interface {
	// SnapshotReceived delivers a successful fetch. entered is true exactly
	// once, for the first snapshot that shows a running game.
	SnapshotReceived(snap protocol.RoomSnapshot, entered bool)
	PollFailed(err error)
}

// Poller repeatedly fetches a room snapshot.
type Poller struct {
	fetcher Fetcher
	handler Handler
	roomID  string
	clock   quartz.Clock
	logger  *log.Logger

	lobbyInterval  time.Duration
	gameInterval   time.Duration
	jitter         time.Duration
	continueInGame bool
	seed           int64

	mu      sync.Mutex
	mode    Mode
	entered bool
}

// Option configures a Poller.
type Option func(*Poller)

// WithIntervals sets the lobby and in-game cadences.
func WithIntervals(lobby, game time.Duration) Option {
	return func(p *Poller) {
		if lobby > 0 {
			p.lobbyInterval = lobby
		}
		if game > 0 {
			p.gameInterval = game
		}
	}
}

// WithJitter spreads each wait by up to ±spread.
func WithJitter(spread time.Duration, seed int64) Option {
	return func(p *Poller) {
		p.jitter = spread
		p.seed = seed
	}
}

// WithContinueInGame keeps polling at the game interval after the game
// starts instead of stopping.
func WithContinueInGame(enabled bool) Option {
	return func(p *Poller) {
		p.continueInGame = enabled
	}
}

// New creates a poller for roomID.
func New(fetcher Fetcher, roomID string, handler Handler, clock quartz.Clock, logger *log.Logger, opts ...Option) *Poller {
	p := &Poller{
		fetcher:       fetcher,
		handler:       handler,
		roomID:        roomID,
		clock:         clock,
		logger:        logger.WithPrefix("poller"),
		lobbyInterval: DefaultLobbyInterval,
		gameInterval:  DefaultGameInterval,
		seed:          time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mode returns the current cadence.
func (p *Poller) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Entered reports whether the game transition has happened.
func (p *Poller) Entered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.entered
}

// Run fetches immediately and then once per interval until ctx is done or,
// without ContinueInGame, until the game starts. Fetch errors never stop it.
func (p *Poller) Run(ctx context.Context) error {
	rng := randutil.New(p.seed)
	p.logger.Debug("Polling started", "room", p.roomID, "mode", p.Mode())

	for {
		if p.Tick(ctx) {
			p.logger.Debug("Polling stopped after entering game", "room", p.roomID)
			return nil
		}

		wait := randutil.Jitter(rng, p.interval(), p.jitter)
		timer := p.clock.NewTimer(wait, clockTag)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Tick performs one fetch and delivery. It returns true when polling should
// stop.
func (p *Poller) Tick(ctx context.Context) bool {
	snap, err := p.fetcher.RoomState(ctx, p.roomID)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return false
		}
		p.logger.Warn("Room poll failed", "room", p.roomID, "error", err)
		p.handler.PollFailed(err)
		return false
	}

	if err := snap.Validate(); err != nil {
		p.logger.Warn("Inconsistent room snapshot", "error", err)
	}

	p.mu.Lock()
	entered := !p.entered && snap.InGame()
	if entered {
		p.entered = true
		if p.continueInGame {
			p.mode = Game
		}
	}
	p.mu.Unlock()

	if entered {
		p.logger.Info("Game started", "room", p.roomID, "players", len(snap.Players))
	}
	p.handler.SnapshotReceived(*snap, entered)

	return entered && !p.continueInGame
}

func (p *Poller) interval() time.Duration {
	if p.Mode() == Game {
		return p.gameInterval
	}
	return p.lobbyInterval
}
