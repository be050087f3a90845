package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version  kong.VersionFlag `short:"v" help:"Show version"`
	Server   ServerCmd        `cmd:"" help:"Run the Cheat websocket server"`
	Simulate SimulateCmd      `cmd:"" help:"Play bot-vs-bot games without a server"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("cheatd"),
		kong.Description("Websocket server for the card game Cheat"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
