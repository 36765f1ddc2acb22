// Package botflow tracks the automated player's progress through a round:
// seat assignment, dealing, hand recognition and play.
package botflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lox/tablesync/internal/protocol"
)

// Phase is the bot workflow stage. Phases are ordered and only move forward
// until NewRound.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseAdded
	PhaseCardsDealt
	PhaseRecognizing
	PhaseReady
	PhasePlaying
)

func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseAdded:
		return "added"
	case PhaseCardsDealt:
		return "cards-dealt"
	case PhaseRecognizing:
		return "recognizing"
	case PhaseReady:
		return "ready"
	case PhasePlaying:
		return "playing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Bot seats are player positions 2-4; position 1 holds the camera.
const (
	MinSeat = 2
	MaxSeat = 4
)

var (
	// ErrPhase is returned when an operation is not allowed in the current phase.
	ErrPhase = errors.New("operation not allowed in current bot phase")
	// ErrSeat is returned for a seat outside MinSeat..MaxSeat.
	ErrSeat = errors.New("invalid bot seat")
	// ErrCardIndex is returned for a card slot outside 1..10.
	ErrCardIndex = errors.New("invalid bot card index")
)

// ValidSeat reports whether seat can host a bot.
func ValidSeat(seat int) bool {
	return seat >= MinSeat && seat <= MaxSeat
}

// Workflow is the bot state machine. Not safe for concurrent use.
type Workflow struct {
	seats      map[int]struct{}
	phase      Phase
	recognized int
	assignment [protocol.BotHandSize]string
	played     [protocol.BotHandSize]bool
	roundEnded bool
}

func New() *Workflow {
	return &Workflow{seats: make(map[int]struct{})}
}

func (w *Workflow) Phase() Phase { return w.phase }

// RecognizedCount is the number of distinct bot cards recognised this round.
func (w *Workflow) RecognizedCount() int { return w.recognized }

// Assignment returns the card recognised for slot n (1..10).
func (w *Workflow) Assignment(n int) (string, bool) {
	if n < 1 || n > protocol.BotHandSize {
		return "", false
	}
	id := w.assignment[n-1]
	return id, id != ""
}

// Remaining counts bot cards not yet played.
func (w *Workflow) Remaining() int {
	n := protocol.BotHandSize
	for _, p := range w.played {
		if p {
			n--
		}
	}
	return n
}

// Seats returns the bot-controlled seats in ascending order.
func (w *Workflow) Seats() []int {
	out := make([]int, 0, len(w.seats))
	for s := range w.seats {
		out = append(out, s)
	}
	sort.Ints(out)
	return out
}

func (w *Workflow) IsBot(seat int) bool {
	_, ok := w.seats[seat]
	return ok
}

func (w *Workflow) advance(p Phase) {
	if p > w.phase {
		w.phase = p
	}
}

// AddSeat marks seat as bot-controlled.
func (w *Workflow) AddSeat(seat int) error {
	if !ValidSeat(seat) {
		return fmt.Errorf("%w: %d", ErrSeat, seat)
	}
	w.seats[seat] = struct{}{}
	w.advance(PhaseAdded)
	return nil
}

// RemoveSeat drops seat from the bot set. The phase is untouched.
func (w *Workflow) RemoveSeat(seat int) {
	delete(w.seats, seat)
}

// SetSeats replaces the bot set with a server listing. Invalid seats are
// skipped and returned.
func (w *Workflow) SetSeats(seats []int) (skipped []int) {
	w.seats = make(map[int]struct{}, len(seats))
	for _, s := range seats {
		if !ValidSeat(s) {
			skipped = append(skipped, s)
			continue
		}
		w.seats[s] = struct{}{}
	}
	if len(w.seats) > 0 {
		w.advance(PhaseAdded)
	}
	return skipped
}

// EndRound notes that the server closed the current round. The next deal may
// then start a new round without an explicit NewRound.
func (w *Workflow) EndRound() { w.roundEnded = true }

// RoundEnded reports whether EndRound was seen since the last deal.
func (w *Workflow) RoundEnded() bool { return w.roundEnded }

// CardsDealt records the seats that received cards and moves to CardsDealt.
func (w *Workflow) CardsDealt(seats []int) error {
	if w.phase > PhaseCardsDealt {
		return fmt.Errorf("%w: cards dealt during %s", ErrPhase, w.phase)
	}
	for _, s := range seats {
		if !ValidSeat(s) {
			return fmt.Errorf("%w: %d", ErrSeat, s)
		}
	}
	for _, s := range seats {
		w.seats[s] = struct{}{}
	}
	w.phase = PhaseCardsDealt
	w.roundEnded = false
	return nil
}

// CanStartRecognition reports whether recognition may be requested.
func (w *Workflow) CanStartRecognition() bool {
	return w.phase == PhaseCardsDealt
}

// StartRecognition enters Recognizing with no cards recognised. Restarting
// is allowed only while nothing has been recognised yet.
func (w *Workflow) StartRecognition() error {
	switch {
	case w.phase < PhaseRecognizing:
	case w.phase == PhaseRecognizing && w.recognized == 0:
	default:
		return fmt.Errorf("%w: recognition start during %s (%d recognised)", ErrPhase, w.phase, w.recognized)
	}
	w.phase = PhaseRecognizing
	w.recognized = 0
	w.assignment = [protocol.BotHandSize]string{}
	return nil
}

// Recognize assigns cardID to slot n. The count only grows for a slot seen
// for the first time; the tenth distinct slot moves the workflow to Ready.
// A recognition arriving straight after dealing implies the start.
func (w *Workflow) Recognize(n int, cardID string) (ready bool, err error) {
	if n < 1 || n > protocol.BotHandSize {
		return false, fmt.Errorf("%w: %d", ErrCardIndex, n)
	}
	switch w.phase {
	case PhaseCardsDealt:
		w.phase = PhaseRecognizing
	case PhaseRecognizing:
	default:
		return false, fmt.Errorf("%w: card recognised during %s", ErrPhase, w.phase)
	}

	if w.assignment[n-1] == "" {
		w.recognized++
	}
	w.assignment[n-1] = cardID

	if w.recognized == protocol.BotHandSize {
		w.phase = PhaseReady
		return true, nil
	}
	return false, nil
}

// Played marks bot card n as gone and returns the number of cards left.
func (w *Workflow) Played(seat, n int) (remaining int, err error) {
	if !ValidSeat(seat) {
		return w.Remaining(), fmt.Errorf("%w: %d", ErrSeat, seat)
	}
	if n < 1 || n > protocol.BotHandSize {
		return w.Remaining(), fmt.Errorf("%w: %d", ErrCardIndex, n)
	}
	if w.phase < PhaseCardsDealt {
		return w.Remaining(), fmt.Errorf("%w: bot %d played during %s", ErrPhase, seat, w.phase)
	}
	w.seats[seat] = struct{}{}
	w.played[n-1] = true
	w.advance(PhasePlaying)
	return w.Remaining(), nil
}

// NewRound is the only backwards transition: it returns to None while
// keeping the bot seats.
func (w *Workflow) NewRound() {
	w.phase = PhaseNone
	w.recognized = 0
	w.assignment = [protocol.BotHandSize]string{}
	w.played = [protocol.BotHandSize]bool{}
	w.roundEnded = false
}

// State is a read-only copy of the workflow.
type State struct {
	Seats      []int
	Phase      Phase
	Recognized int
	Remaining  int
	Assignment [protocol.BotHandSize]string
}

func (w *Workflow) State() State {
	return State{
		Seats:      w.Seats(),
		Phase:      w.phase,
		Recognized: w.recognized,
		Remaining:  w.Remaining(),
		Assignment: w.assignment,
	}
}
