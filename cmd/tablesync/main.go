package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Globals

	Version kong.VersionFlag `short:"v" help:"Show version"`
	Room    RoomCmd          `cmd:"" help:"Join or create a room and follow it until the game starts"`
	Play    PlayCmd          `cmd:"" help:"Play one card in a running room game"`
	Vision  VisionCmd        `cmd:"" help:"Start a camera game and show the live table"`
	Bot     BotCmd           `cmd:"" help:"Manage bot players"`
	Round   RoundCmd         `cmd:"" help:"Control rounds of a camera game"`
	Ready   ReadyCmd         `cmd:"" help:"Tell the server the trump card has been removed"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tablesync"),
		kong.Description("Keeps a Sueca table in sync with the room server and the camera event stream"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
