package main

import (
	"context"

	"github.com/coder/quartz"
	"github.com/lox/tablesync/internal/display"
	"github.com/lox/tablesync/internal/dispatch"
	"github.com/lox/tablesync/internal/session"
	"github.com/lox/tablesync/internal/stream"
	"golang.org/x/sync/errgroup"
)

type VisionCmd struct {
	Name string `short:"n" help:"Player name (defaults to config, then a generated name)"`
	Room string `short:"r" help:"Room to attach the camera game to"`
	Game string `short:"g" help:"Follow an existing game instead of starting one"`
}

func (c *VisionCmd) Run(g *Globals) error {
	e, err := g.setup(true)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(e.logger)
	defer cancel()

	cfg := e.cfg
	sess, err := session.New(e.client, session.Config{
		GameID:           c.Game,
		ResetDelay:       cfg.ResetDelay(),
		HandshakeTimeout: cfg.HandshakeTimeout(),
		Reconnect: session.ReconnectPolicy{
			Attempts: cfg.Stream.ReconnectAttempts,
			Delay:    cfg.ReconnectDelay(),
		},
	}, quartz.NewReal(), e.logger)
	if err != nil {
		return err
	}
	d := dispatch.New(e.client, sess, e.logger)

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return sess.Run(ctx) })

	if c.Game == "" {
		name := firstNonEmpty(c.Name, cfg.Player.Name)
		room := firstNonEmpty(c.Room, cfg.Player.RoomID)
		if _, err := d.StartVisionGame(ctx, name, room); err != nil {
			stop()
			_ = group.Wait()
			return err
		}
	}

	gameID := func() string { return sess.Snapshot().GameID }
	model := display.NewModel(ctx, sess, sess.Events(), display.Actions{
		NewRound: func(ctx context.Context) error { return d.StartRound(ctx, gameID()) },
		Ready:    func(ctx context.Context) error { return d.MarkReady(ctx, gameID()) },
		StartRecognition: func(ctx context.Context) error {
			if sess.Snapshot().Stream != stream.Open {
				return stream.ErrNotConnected
			}
			return d.StartRecognition(ctx)
		},
	}, e.logger)

	group.Go(func() error {
		defer stop()
		return display.Run(ctx, model)
	})
	return group.Wait()
}
