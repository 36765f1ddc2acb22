package main

import (
	"context"
	"fmt"

	"github.com/lox/tablesync/internal/dispatch"
	"github.com/pterm/pterm"
)

type BotCmd struct {
	Add    BotAddCmd    `cmd:"" help:"Add a bot at a seat (2-4)"`
	Remove BotRemoveCmd `cmd:"" help:"Remove the bot at a seat"`
	List   BotListCmd   `cmd:"" help:"List bot seats"`
}

type BotAddCmd struct {
	Seat int `arg:"" help:"Seat number (2-4)"`
}

func (c *BotAddCmd) Run(g *Globals) error {
	return withDispatcher(g, func(ctx context.Context, d *dispatch.Dispatcher) error {
		if err := d.AddBot(ctx, c.Seat); err != nil {
			return err
		}
		printDone("Bot added at seat %d", c.Seat)
		return nil
	})
}

type BotRemoveCmd struct {
	Seat int `arg:"" help:"Seat number (2-4)"`
}

func (c *BotRemoveCmd) Run(g *Globals) error {
	return withDispatcher(g, func(ctx context.Context, d *dispatch.Dispatcher) error {
		if err := d.RemoveBot(ctx, c.Seat); err != nil {
			return err
		}
		printDone("Bot removed from seat %d", c.Seat)
		return nil
	})
}

type BotListCmd struct{}

func (c *BotListCmd) Run(g *Globals) error {
	return withDispatcher(g, func(ctx context.Context, d *dispatch.Dispatcher) error {
		seats, err := d.ListBots(ctx)
		if err != nil {
			return err
		}
		if len(seats) == 0 {
			pterm.Info.Println("No bots")
			return nil
		}
		out, err := botTable(seats)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	})
}

type RoundCmd struct {
	Start RoundStartCmd `cmd:"" help:"Start a new round"`
}

type RoundStartCmd struct {
	Game string `short:"g" required:"" help:"Game id"`
}

func (c *RoundStartCmd) Run(g *Globals) error {
	return withDispatcher(g, func(ctx context.Context, d *dispatch.Dispatcher) error {
		if err := d.StartRound(ctx, c.Game); err != nil {
			return err
		}
		printDone("New round started for game %s", c.Game)
		return nil
	})
}

type ReadyCmd struct {
	Game string `short:"g" required:"" help:"Game id"`
}

func (c *ReadyCmd) Run(g *Globals) error {
	return withDispatcher(g, func(ctx context.Context, d *dispatch.Dispatcher) error {
		if err := d.MarkReady(ctx, c.Game); err != nil {
			return err
		}
		printDone("Game %s marked ready", c.Game)
		return nil
	})
}

// withDispatcher runs fn with a one-shot dispatcher that keeps no session
// state.
func withDispatcher(g *Globals, fn func(context.Context, *dispatch.Dispatcher) error) error {
	e, err := g.setup(false)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(e.logger)
	defer cancel()
	return fn(ctx, dispatch.New(e.client, nil, e.logger))
}
