// Package table holds the renderable view of the card table: four seat slots,
// the trump slot and the bot's ten-card hand.
package table

import (
	"fmt"

	"github.com/lox/tablesync/internal/protocol"
)

// Seat is a table position.
type Seat int

const (
	North Seat = iota
	West
	East
	South
)

// Seats lists every seat in display order.
var Seats = [...]Seat{North, West, East, South}

func (s Seat) String() string {
	switch s {
	case North:
		return "north"
	case West:
		return "west"
	case East:
		return "east"
	case South:
		return "south"
	default:
		return fmt.Sprintf("seat(%d)", int(s))
	}
}

// SeatForPlayer maps a referee player tag to the seat it is drawn at. The
// mapping is fixed: 1 north, 2 west, 3 south, 4 east.
func SeatForPlayer(tag protocol.PlayerTag) (Seat, bool) {
	switch tag {
	case "1":
		return North, true
	case "2":
		return West, true
	case "3":
		return South, true
	case "4":
		return East, true
	}
	return 0, false
}

// Face describes what a slot is showing.
type Face int

const (
	// Hidden slots are not drawn at all.
	Hidden Face = iota
	Back
	FaceUp
	// Vacant marks a bot card that has been played.
	Vacant
)

func (f Face) String() string {
	switch f {
	case Hidden:
		return "hidden"
	case Back:
		return "back"
	case FaceUp:
		return "face-up"
	case Vacant:
		return "vacant"
	default:
		return fmt.Sprintf("face(%d)", int(f))
	}
}

// Slot is one displayed card position.
type Slot struct {
	Face   Face
	CardID string
}

// BackSlot is a face-down card.
var BackSlot = Slot{Face: Back}

// CardSlot returns a face-up slot showing cardID.
func CardSlot(cardID string) Slot {
	return Slot{Face: FaceUp, CardID: cardID}
}

// Fingerprint identifies an unstructured stream payload for de-duplication.
type Fingerprint string

// View is the mutable table state. It is not safe for concurrent use; the
// session loop is its only writer.
type View struct {
	seats       [len(Seats)]Slot
	trump       Slot
	botHand     [protocol.BotHandSize]Slot
	fingerprint Fingerprint
}

// NewView returns a view with every seat and the trump face down and the bot
// hand hidden.
func NewView() *View {
	v := &View{}
	v.ResetSeats()
	v.trump = BackSlot
	return v
}

func (v *View) Seat(s Seat) Slot { return v.seats[s] }
func (v *View) Trump() Slot      { return v.trump }

// BotSlot returns bot card n, numbered 1..10.
func (v *View) BotSlot(n int) Slot {
	if n < 1 || n > len(v.botHand) {
		return Slot{}
	}
	return v.botHand[n-1]
}

func (v *View) Fingerprint() Fingerprint { return v.fingerprint }

// SetFingerprint records the last unstructured payload and reports whether it
// differs from the previous one.
func (v *View) SetFingerprint(fp Fingerprint) (changed bool) {
	changed = fp != v.fingerprint
	v.fingerprint = fp
	return changed
}

// ResetSeats turns the four seat slots face down. Trump and bot slots are
// left alone.
func (v *View) ResetSeats() {
	for i := range v.seats {
		v.seats[i] = BackSlot
	}
}

// PlaceCard shows cardID at seat.
func (v *View) PlaceCard(s Seat, cardID string) {
	v.seats[s] = CardSlot(cardID)
}

// SetTrump shows cardID in the trump slot.
func (v *View) SetTrump(cardID string) {
	v.trump = CardSlot(cardID)
}

// RevealBotHand shows all ten bot slots face down.
func (v *View) RevealBotHand() {
	for i := range v.botHand {
		v.botHand[i] = BackSlot
	}
}

// SetBotCard shows cardID at bot slot n (1..10).
func (v *View) SetBotCard(n int, cardID string) {
	if n < 1 || n > len(v.botHand) {
		return
	}
	v.botHand[n-1] = CardSlot(cardID)
}

// VacateBotSlot marks bot slot n (1..10) as played.
func (v *View) VacateBotSlot(n int) {
	if n < 1 || n > len(v.botHand) {
		return
	}
	v.botHand[n-1] = Slot{Face: Vacant}
}

// Clear returns the view to its state at game entry: seats and trump face
// down, bot hand hidden and no fingerprint.
func (v *View) Clear() {
	*v = View{}
	v.ResetSeats()
	v.trump = BackSlot
}

// Snapshot is an immutable copy of a View for renderers.
type Snapshot struct {
	Seats       [len(Seats)]Slot
	Trump       Slot
	BotHand     [protocol.BotHandSize]Slot
	Fingerprint Fingerprint
}

// Seat returns the slot drawn at s.
func (s Snapshot) Seat(seat Seat) Slot { return s.Seats[seat] }

// Snapshot copies the current view.
func (v *View) Snapshot() Snapshot {
	return Snapshot{
		Seats:       v.seats,
		Trump:       v.trump,
		BotHand:     v.botHand,
		Fingerprint: v.fingerprint,
	}
}
