package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/tablesync/internal/dispatch"
	"github.com/lox/tablesync/internal/notify"
	"github.com/lox/tablesync/internal/session"
	"golang.org/x/sync/errgroup"
)

type RoomCmd struct {
	Name     string `short:"n" help:"Player name (defaults to config, then a generated name)"`
	Room     string `short:"r" help:"Room to join; empty creates a new room"`
	Continue bool   `help:"Keep polling the game after it starts (overrides config)"`
}

func (c *RoomCmd) Run(g *Globals) error {
	e, err := g.setup(false)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(e.logger)
	defer cancel()

	name := firstNonEmpty(c.Name, e.cfg.Player.Name)
	roomID := firstNonEmpty(c.Room, e.cfg.Player.RoomID)

	joined, err := dispatch.New(e.client, nil, e.logger).JoinOrCreate(ctx, name, roomID)
	if err != nil {
		return err
	}
	printDone("Joined room %s as player %s", joined.RoomID, joined.PlayerID)

	continueInGame := c.Continue || e.cfg.Polling.ContinueInGame
	sess, err := session.New(e.client, session.Config{
		RoomID:         joined.RoomID,
		PlayerID:       joined.PlayerID,
		LobbyInterval:  e.cfg.LobbyInterval(),
		GameInterval:   e.cfg.GameInterval(),
		PollJitter:     e.cfg.PollJitter(),
		ContinueInGame: continueInGame,
		ResetDelay:     e.cfg.ResetDelay(),
	}, quartz.NewReal(), e.logger)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return sess.Run(ctx) })
	group.Go(func() error {
		for event := range sess.Events() {
			printEvent(event)
			if entered, ok := event.(notify.EnteredGame); ok {
				printHand(sess.Snapshot(), e.logger)
				if !continueInGame {
					e.logger.Debug("Game started, leaving room follow", "room", entered.Snapshot.RoomID)
					stop()
				}
			}
		}
		return nil
	})
	return group.Wait()
}

func printHand(snap *session.Snapshot, logger *log.Logger) {
	if snap == nil || len(snap.Hand) == 0 {
		return
	}
	out, err := handTable(snap.Hand)
	if err != nil {
		logger.Warn("Failed to render hand", "error", err)
		return
	}
	fmt.Println("Your hand:")
	fmt.Print(out)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
