// Package session owns the synchronised state of one game session and runs
// the poller, the event stream and the reset timer around a single-writer
// loop.
package session

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/tablesync/internal/botflow"
	"github.com/lox/tablesync/internal/notify"
	"github.com/lox/tablesync/internal/poller"
	"github.com/lox/tablesync/internal/protocol"
	"github.com/lox/tablesync/internal/resettimer"
	"github.com/lox/tablesync/internal/sessionid"
	"github.com/lox/tablesync/internal/stream"
	"github.com/lox/tablesync/internal/table"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed         = errors.New("session closed")
	ErrAlreadyRunning = errors.New("session already running")
)

const (
	mailboxSize = 256
	eventBuffer = 128

	reconnectTag = "reconnect"

	// SessionIDHeader carries the session id on the stream upgrade request.
	SessionIDHeader = "X-Session-ID"
)

// API is what the session needs from the transport.
type API interface {
	poller.Fetcher
	StreamURL(gameID string) string
}

// ReconnectPolicy decides what happens after the event stream fails.
type ReconnectPolicy struct {
	Attempts int
	Delay    time.Duration
}

// Config describes one session.
type Config struct {
	// RoomID enables snapshot polling when set.
	RoomID   string
	PlayerID string
	// GameID dials the event stream at start when set. A game started later
	// through GameStarted dials it then.
	GameID   string

	LobbyInterval  time.Duration
	GameInterval   time.Duration
	PollJitter     time.Duration
	ContinueInGame bool

	ResetDelay       time.Duration
	HandshakeTimeout time.Duration
	Reconnect        ReconnectPolicy
}

// Snapshot is the published, read-only state of a session.
type Snapshot struct {
	SessionID string
	Version   uint64

	RoomID   string
	PlayerID string
	GameID   string
	InGame   bool
	Room     *protocol.RoomSnapshot
	Hand     []protocol.Card

	Table  table.Snapshot
	Bots   botflow.State
	Stream stream.State
}

// Session is the explicit owner of every piece of synchronised state. Only
// the loop goroutine touches the fields marked loop-owned.
type Session struct {
	id     string
	api    API
	cfg    Config
	clock  quartz.Clock
	logger *log.Logger

	mailbox chan step
	events  chan notify.Event
	gameIDs chan string
	done    chan struct{}
	started atomic.Bool

	published atomic.Pointer[Snapshot]
	conn      atomic.Pointer[stream.Conn]

	// loop-owned
	view      *table.View
	bots      *botflow.Workflow
	timer     *resettimer.Timer
	processor *stream.Processor
	room      *protocol.RoomSnapshot
	roomID    string
	playerID  string
	gameID    string
	entered   bool
	played    []string
	version   uint64
}

// New builds a session. Nothing runs until Run is called.
func New(api API, cfg Config, clock quartz.Clock, logger *log.Logger) (*Session, error) {
	id, err := sessionid.New()
	if err != nil {
		return nil, err
	}
	if cfg.ResetDelay <= 0 {
		cfg.ResetDelay = resettimer.DefaultDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = stream.DefaultHandshakeTimeout
	}

	s := &Session{
		id:       id,
		api:      api,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.WithPrefix("session").With("session", id),
		mailbox:  make(chan step, mailboxSize),
		events:   make(chan notify.Event, eventBuffer),
		gameIDs:  make(chan string, 1),
		done:     make(chan struct{}),
		view:     table.NewView(),
		bots:     botflow.New(),
		roomID:   cfg.RoomID,
		playerID: cfg.PlayerID,
		gameID:   cfg.GameID,
	}
	s.timer = resettimer.New(clock, cfg.ResetDelay, s.view.ResetSeats, s.enqueue, s.logger)
	s.processor = stream.NewProcessor(s.view, s.bots, s.timer, s.emit, s.logger)
	if cfg.GameID != "" {
		s.gameIDs <- cfg.GameID
	}
	s.publish()
	return s, nil
}

func (s *Session) ID() string { return s.id }

// Events delivers notifications in the order they happened. The channel is
// closed when Run returns. Events are dropped if nobody reads them.
func (s *Session) Events() <-chan notify.Event { return s.events }

// Snapshot returns the latest published state. It never blocks.
func (s *Session) Snapshot() *Snapshot { return s.published.Load() }

// Run drives the session until ctx is cancelled or a component fails. The
// websocket is closed gracefully and the reset timer cancelled on the way
// out.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.events)

	s.logger.Info("Session started", "room", s.cfg.RoomID, "game", s.cfg.GameID)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop(ctx) })
	if s.cfg.RoomID != "" {
		p := s.newPoller(s.cfg.RoomID)
		g.Go(func() error { return p.Run(ctx) })
	}
	g.Go(func() error { return s.superviseStream(ctx) })

	err := g.Wait()
	s.logger.Info("Session ended")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// SendFrame forwards an opaque frame on the event stream.
func (s *Session) SendFrame(frame string) error {
	conn := s.conn.Load()
	if conn == nil {
		return stream.ErrNotConnected
	}
	return conn.SendFrame(frame)
}

func (s *Session) newPoller(roomID string) *poller.Poller {
	return poller.New(s.api, roomID, pollHandler{s}, s.clock, s.logger,
		poller.WithIntervals(s.cfg.LobbyInterval, s.cfg.GameInterval),
		poller.WithJitter(s.cfg.PollJitter, s.clock.Now().UnixNano()),
		poller.WithContinueInGame(s.cfg.ContinueInGame),
	)
}

func (s *Session) loop(ctx context.Context) error {
	defer close(s.done)
	defer s.timer.Cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-s.mailbox:
			st.fn()
			s.publish()
			if st.published != nil {
				close(st.published)
			}
		}
	}
}

// step is one unit of loop work. published, when set, is closed after the
// resulting state has been published.
type step struct {
	fn        func()
	published chan struct{}
}

// enqueue posts fn to the loop, dropping it once the loop is gone.
func (s *Session) enqueue(fn func()) {
	s.post(fn)
}

func (s *Session) post(fn func()) bool {
	return s.send(step{fn: fn})
}

func (s *Session) send(st step) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.mailbox <- st:
		return true
	case <-s.done:
		return false
	}
}

// apply runs fn on the loop and waits until its effect is published.
func (s *Session) apply(fn func()) error {
	st := step{fn: fn, published: make(chan struct{})}
	if !s.send(st) {
		return ErrClosed
	}
	select {
	case <-st.published:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) emit(e notify.Event) {
	select {
	case s.events <- e:
	default:
		s.logger.Warn("Dropping notification, consumer too slow", "event", e.String())
	}
}

func (s *Session) publish() {
	s.version++
	snap := &Snapshot{
		SessionID: s.id,
		Version:   s.version,
		RoomID:    s.roomID,
		PlayerID:  s.playerID,
		GameID:    s.gameID,
		InGame:    s.entered,
		Table:     s.view.Snapshot(),
		Bots:      s.bots.State(),
		Stream:    stream.Idle,
	}
	if s.room != nil {
		room := *s.room
		snap.Room = &room
		if room.GameState != nil {
			snap.Hand = slices.DeleteFunc(slices.Clone(room.GameState.Hand(s.playerID)), func(c protocol.Card) bool {
				return slices.Contains(s.played, c.ID)
			})
		}
	}
	if conn := s.conn.Load(); conn != nil {
		snap.Stream = conn.State()
	}
	s.published.Store(snap)
}

// startStream hands gameID to the stream supervisor, replacing any id it has
// not picked up yet.
func (s *Session) startStream(gameID string) {
	for {
		select {
		case s.gameIDs <- gameID:
			return
		default:
		}
		select {
		case <-s.gameIDs:
		default:
		}
	}
}

func (s *Session) superviseStream(ctx context.Context) error {
	var gameID string
	select {
	case <-ctx.Done():
		return ctx.Err()
	case gameID = <-s.gameIDs:
	}

	failures := 0
	for {
		conn := stream.NewConn(s.api.StreamURL(gameID), gameID, streamListener{s}, s.logger,
			stream.WithHandshakeTimeout(s.cfg.HandshakeTimeout),
			stream.WithHeader(http.Header{SessionIDHeader: {s.id}}))
		s.conn.Store(conn)

		err := conn.Dial(ctx)
		if err == nil {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return ctx.Err()
			case next := <-s.gameIDs:
				_ = conn.Close()
				gameID = next
				failures = 0
				continue
			case <-conn.Done():
				err = conn.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		reconnect := failures < s.cfg.Reconnect.Attempts
		failures++
		s.post(func() {
			s.emit(notify.StreamFailed{GameID: gameID, Err: err, Reconnect: reconnect})
		})

		if !reconnect {
			s.logger.Warn("Event stream down, not reconnecting", "game", gameID, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case gameID = <-s.gameIDs:
				failures = 0
				continue
			}
		}

		s.logger.Info("Reconnecting event stream", "game", gameID, "attempt", failures, "delay", s.cfg.Reconnect.Delay)
		wait := s.clock.NewTimer(s.cfg.Reconnect.Delay, reconnectTag)
		select {
		case <-ctx.Done():
			wait.Stop()
			return ctx.Err()
		case next := <-s.gameIDs:
			wait.Stop()
			gameID = next
			failures = 0
		case <-wait.C:
		}
	}
}

type pollHandler struct{ s *Session }

func (h pollHandler) SnapshotReceived(snap protocol.RoomSnapshot, entered bool) {
	h.s.post(func() {
		h.s.room = &snap
		if entered {
			h.s.entered = true
			h.s.emit(notify.EnteredGame{Snapshot: snap})
		}
		h.s.emit(notify.SnapshotUpdated{Snapshot: snap})
	})
}

func (h pollHandler) PollFailed(err error) {
	h.s.post(func() { h.s.emit(notify.PollFailed{Err: err}) })
}

type streamListener struct{ s *Session }

func (l streamListener) StreamOpened(gameID string) {
	l.s.post(func() { l.s.emit(notify.StreamOpened{GameID: gameID}) })
}

func (l streamListener) StreamMessage(raw []byte) {
	l.s.post(func() { l.s.processor.Handle(raw) })
}

// StreamFailed only refreshes the published state; the supervisor reports the
// failure once it has decided whether to reconnect.
func (l streamListener) StreamFailed(string, error) {
	l.s.post(func() {})
}

// Mutators called by the dispatcher once the server accepted an action.

func (s *Session) Joined(playerID, roomID string) error {
	return s.apply(func() {
		s.playerID = playerID
		s.roomID = roomID
	})
}

func (s *Session) CardPlayed(card protocol.Card) error {
	return s.apply(func() {
		s.played = append(s.played, card.ID)
	})
}

func (s *Session) GameStarted(gameID string) error {
	return s.apply(func() {
		s.gameID = gameID
		s.startStream(gameID)
	})
}

// RoundStarted clears the table and returns the bot workflow to None.
func (s *Session) RoundStarted(gameID string) error {
	return s.apply(func() {
		s.timer.Cancel()
		s.view.Clear()
		s.bots.NewRound()
		s.played = nil
		s.emit(notify.RoundStarted{GameID: gameID})
	})
}

func (s *Session) BotAdded(seat int) error {
	var err error
	applyErr := s.apply(func() {
		known := s.bots.IsBot(seat)
		if err = s.bots.AddSeat(seat); err == nil && !known {
			s.emit(notify.BotAdded{Seat: seat})
		}
	})
	return errors.Join(applyErr, err)
}

func (s *Session) BotRemoved(seat int) error {
	return s.apply(func() {
		s.bots.RemoveSeat(seat)
		s.emit(notify.BotRemoved{Seat: seat})
	})
}

func (s *Session) BotsListed(seats []int) error {
	return s.apply(func() {
		if skipped := s.bots.SetSeats(seats); len(skipped) > 0 {
			s.logger.Warn("Ignoring invalid bot seats from server", "seats", skipped)
		}
	})
}

// RecognitionStarted moves the bots into recognition once the server accepted
// the request. A bot_recognition_start that arrived first has already done so.
func (s *Session) RecognitionStarted() error {
	return s.apply(func() {
		if !s.bots.CanStartRecognition() {
			s.logger.Debug("Recognition already under way", "phase", s.bots.Phase())
			return
		}
		if err := s.bots.StartRecognition(); err != nil {
			s.logger.Warn("Could not start recognition", "error", err)
			return
		}
		s.view.RevealBotHand()
		s.emit(notify.RecognitionStarted{})
	})
}

// BotState reads the published bot workflow.
func (s *Session) BotState() botflow.State {
	return s.Snapshot().Bots
}
