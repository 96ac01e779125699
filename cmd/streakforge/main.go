package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"YAML config file." type:"path" env:"STREAKFORGE_CONFIG"`

	Serve     ServeCmd     `cmd:"" help:"Run the HTTP server." default:"1"`
	Recompute RecomputeCmd `cmd:"" help:"Rebuild a user's streak aggregates from their completions. Connected clients see the result on their next reload."`
	VAPIDKeys VAPIDKeysCmd `cmd:"" name:"vapid-keys" help:"Generate a VAPID key pair for web push."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("streakforge"),
		kong.Description("Daily habit tracker with streaks and a friends leaderboard"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	if err := ctx.Run(&Globals{ConfigPath: CLI.Config}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
