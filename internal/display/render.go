// Package display draws a session snapshot in the terminal.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lox/tablesync/internal/protocol"
	"github.com/lox/tablesync/internal/session"
	"github.com/lox/tablesync/internal/table"
)

var suitSymbols = map[string]string{
	"hearts":   "♥",
	"diamonds": "♦",
	"clubs":    "♣",
	"spades":   "♠",
}

var rankLabels = map[string]string{
	"ace":   "A",
	"king":  "K",
	"queen": "Q",
	"jack":  "J",
}

// CardLabel shortens a "<suit>_<rank>" identifier, e.g. "spades_king" to
// "K♠". Identifiers it does not understand are returned unchanged.
func CardLabel(cardID string) string {
	suit, rank, ok := strings.Cut(cardID, "_")
	if !ok {
		return cardID
	}
	symbol, ok := suitSymbols[suit]
	if !ok {
		return cardID
	}
	if label, ok := rankLabels[rank]; ok {
		rank = label
	}
	return rank + symbol
}

func isRed(cardID string) bool {
	return strings.HasPrefix(cardID, "hearts_") || strings.HasPrefix(cardID, "diamonds_")
}

// renderSlot draws one card position.
func renderSlot(s table.Slot) string {
	switch s.Face {
	case table.Back:
		return BackStyle.Render("[##]")
	case table.Vacant:
		return VacantStyle.Render("[  ]")
	case table.FaceUp:
		label := "[" + CardLabel(s.CardID) + "]"
		if isRed(s.CardID) {
			return RedCardStyle.Render(label)
		}
		return BlackCardStyle.Render(label)
	}
	return ""
}

func renderSeat(snap table.Snapshot, seat table.Seat) string {
	name := strings.ToUpper(seat.String()[:1]) + seat.String()[1:]
	return SeatStyle.Render(InfoStyle.Render(name) + "\n" + renderSlot(snap.Seat(seat)))
}

// RenderTable draws the four seats around the trump card.
func RenderTable(snap table.Snapshot) string {
	trump := TrumpStyle.Render(InfoStyle.Render("Trump") + " " + renderSlot(snap.Trump))
	blank := SeatStyle.Render("")

	top := lipgloss.JoinHorizontal(lipgloss.Center, blank, renderSeat(snap, table.North), blank)
	middle := lipgloss.JoinHorizontal(lipgloss.Center,
		renderSeat(snap, table.West), SeatStyle.Render(trump), renderSeat(snap, table.East))
	bottom := lipgloss.JoinHorizontal(lipgloss.Center, blank, renderSeat(snap, table.South), blank)
	return lipgloss.JoinVertical(lipgloss.Left, top, middle, bottom)
}

// RenderBotHand draws the ten bot slots, or nothing while they are hidden.
func RenderBotHand(snap table.Snapshot) string {
	slots := make([]string, 0, len(snap.BotHand))
	shown := false
	for _, s := range snap.BotHand {
		if s.Face != table.Hidden {
			shown = true
		}
		slots = append(slots, renderSlot(s))
	}
	if !shown {
		return ""
	}
	return strings.Join(slots, " ")
}

func renderHand(hand []protocol.Card) string {
	if len(hand) == 0 {
		return InfoStyle.Render("(no cards)")
	}
	labels := make([]string, len(hand))
	for i, c := range hand {
		labels[i] = fmt.Sprintf("%d:%s", i+1, renderSlot(table.CardSlot(protocol.CardIdentifier(c.Suit, c.Rank))))
	}
	return strings.Join(labels, " ")
}

// Render draws the whole snapshot: status line, table, bot hand and the
// player's own hand when one is known.
func Render(snap *session.Snapshot) string {
	if snap == nil {
		return InfoStyle.Render("Waiting for session...")
	}

	var b strings.Builder
	status := fmt.Sprintf("room %s  game %s  stream %s", orDash(snap.RoomID), orDash(snap.GameID), snap.Stream)
	b.WriteString(HeaderStyle.Render("tablesync"))
	b.WriteString(" ")
	b.WriteString(InfoStyle.Render(status))
	b.WriteString("\n\n")

	b.WriteString(RenderTable(snap.Table))
	b.WriteString("\n\n")

	bots := snap.Bots
	botLine := fmt.Sprintf("Bots %v  phase %s  recognised %d/%d  remaining %d",
		bots.Seats, bots.Phase, bots.Recognized, protocol.BotHandSize, bots.Remaining)
	b.WriteString(WarningStyle.Render(botLine))
	if hand := RenderBotHand(snap.Table); hand != "" {
		b.WriteString("\n")
		b.WriteString(hand)
	}

	if snap.InGame {
		b.WriteString("\n\n")
		b.WriteString(SuccessStyle.Render("Hand "))
		b.WriteString(renderHand(snap.Hand))
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
