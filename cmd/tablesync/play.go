package main

import (
	"context"

	"github.com/lox/tablesync/internal/dispatch"
	"github.com/lox/tablesync/internal/protocol"
)

type PlayCmd struct {
	Player string `required:"" help:"Player id returned when joining"`
	Room   string `short:"r" required:"" help:"Room id"`
	Card   string `required:"" help:"Card id from your hand"`
	Suit   string `help:"Card suit"`
	Rank   string `help:"Card rank"`
}

func (c *PlayCmd) Run(g *Globals) error {
	e, err := g.setup(false)
	if err != nil {
		return err
	}
	defer e.Close()

	card := protocol.Card{ID: c.Card, Suit: c.Suit, Rank: c.Rank}
	if err := dispatch.New(e.client, nil, e.logger).PlayCard(context.Background(), c.Player, c.Room, card); err != nil {
		return err
	}
	printDone("Played %s", card.ID)
	return nil
}
