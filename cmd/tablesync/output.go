package main

import (
	"fmt"
	"strconv"

	"github.com/lox/tablesync/internal/display"
	"github.com/lox/tablesync/internal/protocol"
	"github.com/lox/tablesync/internal/table"
	"github.com/pterm/pterm"
)

// Line output for the one-shot commands. The full-screen view renders with
// lipgloss instead.

func setOutputColor(enabled bool) {
	if enabled {
		pterm.EnableColor()
	} else {
		pterm.DisableColor()
	}
}

func printDone(format string, args ...any) {
	pterm.Success.Printfln(format, args...)
}

func printEvent(event fmt.Stringer) {
	pterm.Info.Println(event.String())
}

func handTable(hand []protocol.Card) (string, error) {
	data := pterm.TableData{{"#", "Card", "Id"}}
	for i, card := range hand {
		data = append(data, []string{
			strconv.Itoa(i + 1),
			display.CardLabel(protocol.CardIdentifier(card.Suit, card.Rank)),
			card.ID,
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func botTable(seats []int) (string, error) {
	data := pterm.TableData{{"Seat", "Position"}}
	for _, seat := range seats {
		position := "?"
		if s, ok := table.SeatForPlayer(protocol.PlayerTag(strconv.Itoa(seat))); ok {
			position = s.String()
		}
		data = append(data, []string{strconv.Itoa(seat), position})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}
