package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	commit  = "unknown"
)

// CLI is the top-level command structure for eventsctl.
type CLI struct {
	Version kong.VersionFlag `help:"Show version." short:"V"`

	BaseURL       string `help:"API base URL (overrides QUERYCACHE_BASE_URL)." name:"base-url"`
	TokenStore    string `help:"Where the session is persisted." enum:"local,sqlite,postgres,dynamodb" default:"sqlite"`
	SQLitePath    string `help:"SQLite file for --token-store=sqlite." name:"sqlite-path" default:"eventsctl.db"`
	PostgresDSN   string `help:"Connection string for --token-store=postgres." name:"postgres-dsn"`
	DynamoDBTable string `help:"Table for --token-store=dynamodb." name:"dynamodb-table" default:"eventsctl-tokens"`
	DynamoDBSetup bool   `help:"Create the DynamoDB table before use." name:"dynamodb-create-table"`
	Verbose       bool   `help:"Log cache activity to stderr." short:"v"`

	Login   LoginCmd   `cmd:"" help:"Sign in and persist the session."`
	Logout  LogoutCmd  `cmd:"" help:"Forget the persisted session."`
	Events  EventsCmd  `cmd:"" help:"List events."`
	Join    JoinCmd    `cmd:"" help:"Join an event."`
	Leave   LeaveCmd   `cmd:"" help:"Leave an event."`
	Profile ProfileCmd `cmd:"" help:"Show the signed-in profile."`
	Watch   WatchCmd   `cmd:"" help:"Print the events list every time it changes."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Description("Command-line client for the events API."),
		kong.Vars{"version": version + " " + commit},
	)

	if err := run(kctx, &cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, cli *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a, err := newApp(ctx, cli)
	if err != nil {
		return err
	}
	defer a.Close()

	return kctx.Run(a)
}
