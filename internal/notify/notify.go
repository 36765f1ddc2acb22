// Package notify defines the notifications the sync engine emits to its
// consumer (usually a renderer).
package notify

import (
	"fmt"

	"github.com/lox/tablesync/internal/protocol"
)

// Event is a consumer-facing notification.
type Event interface {
	fmt.Stringer
}

// EnteredGame fires once when the polled room reports a running game.
type EnteredGame struct {
	Snapshot protocol.RoomSnapshot
}

// SnapshotUpdated carries every successful poll.
type SnapshotUpdated struct {
	Snapshot protocol.RoomSnapshot
}

// PollFailed reports a failed fetch; polling continues.
type PollFailed struct {
	Err error
}

// StreamOpened announces the event stream is ready.
type StreamOpened struct {
	GameID string
}

// StreamFailed reports a broken event stream.
type StreamFailed struct {
	GameID    string
	Err       error
	Reconnect bool
}

type RoundEnded struct {
	protocol.RoundEnd
}

type BotAdded struct {
	Seat int
}

type BotRemoved struct {
	Seat int
}

// TrumpRequired asks the player to show the trump card before bot
// recognition can start.
type TrumpRequired struct {
	Seats []int
}

type RecognitionStarted struct{}

type CardRecognized struct {
	CardNumber int
	CardID     string
	Recognized int
}

// BotsReady fires when all ten bot cards are recognised.
type BotsReady struct{}

type BotPlayed struct {
	Seat      int
	CardName  string
	CardIndex int
	Remaining int
}

// TrumpSet fires when the referee accepts a card as trump.
type TrumpSet struct {
	CardID string
}

// CardPlaced fires when a recognised card is drawn at a seat.
type CardPlaced struct {
	Seat   string
	CardID string
}

// RoundStarted fires after a new round was accepted by the server.
type RoundStarted struct {
	GameID string
}

func (e EnteredGame) String() string {
	return fmt.Sprintf("game started in room %s", e.Snapshot.RoomID)
}

func (e SnapshotUpdated) String() string {
	return fmt.Sprintf("room %s: %d players", e.Snapshot.RoomID, len(e.Snapshot.Players))
}

func (e PollFailed) String() string { return fmt.Sprintf("poll failed: %v", e.Err) }

func (e StreamOpened) String() string { return fmt.Sprintf("event stream open for game %s", e.GameID) }

func (e StreamFailed) String() string {
	if e.Reconnect {
		return fmt.Sprintf("event stream failed (reconnecting): %v", e.Err)
	}
	return fmt.Sprintf("event stream failed: %v", e.Err)
}

func (e RoundEnded) String() string {
	s := fmt.Sprintf("round %d won by team %d with %d points (%d-%d)",
		e.RoundNumber, e.WinnerTeam, e.WinnerPoints, e.Team1Points, e.Team2Points)
	if e.GameEnded {
		s += ", game over"
	}
	return s
}

func (e BotAdded) String() string   { return fmt.Sprintf("bot added at seat %d", e.Seat) }
func (e BotRemoved) String() string { return fmt.Sprintf("bot removed from seat %d", e.Seat) }

func (e TrumpRequired) String() string {
	return fmt.Sprintf("bot cards dealt to %v: show the trump card", e.Seats)
}

func (RecognitionStarted) String() string { return "bot card recognition started" }

func (e CardRecognized) String() string {
	return fmt.Sprintf("bot card %d is %s (%d/%d)", e.CardNumber, e.CardID, e.Recognized, protocol.BotHandSize)
}

func (BotsReady) String() string { return "all bot cards recognised" }

func (e BotPlayed) String() string {
	return fmt.Sprintf("bot %d played card %d (%s), %d left", e.Seat, e.CardIndex, e.CardName, e.Remaining)
}

func (e TrumpSet) String() string     { return fmt.Sprintf("trump is %s", e.CardID) }
func (e CardPlaced) String() string   { return fmt.Sprintf("%s played %s", e.Seat, e.CardID) }
func (e RoundStarted) String() string { return fmt.Sprintf("new round started for game %s", e.GameID) }

// Func adapts a function to a notification sink.
type Func func(Event)

// Discard drops every event.
func Discard(Event) {}
