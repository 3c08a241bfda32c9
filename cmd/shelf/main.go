package main

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"

	"github.com/lthms/shelf/internal/store"
)

// Globals are the flags shared by every command.
type Globals struct {
	Debug  bool   `env:"SHELF_DEBUG" help:"Enable debug logging."`
	Config string `type:"path" env:"SHELF_CONFIG" help:"User config file (default ~/.config/shelf/config)."`
	DB     string `type:"path" env:"SHELF_DB" help:"SQLite store (overrides [paths] db)."`
	Data   string `type:"path" env:"SHELF_DATA" help:"Exported JSON directory (overrides [paths] data)."`
}

// CLI is the top-level command structure for shelf.
type CLI struct {
	Globals

	Sync    SyncCmd    `cmd:"" help:"Pull bookmarks and papers from the remote APIs into the store."`
	Import  ImportCmd  `cmd:"" help:"Import a local export (Goodreads CSV, Spotify history)."`
	Export  ExportCmd  `cmd:"" help:"Write JSON snapshots of the store for the site build."`
	Runs    RunsCmd    `cmd:"" help:"List recent sync runs."`
	Build   BuildCmd   `cmd:"" help:"Render the static site."`
	Explore ExploreCmd `cmd:"" help:"Browse books, music or the library in the terminal."`
	Tags    TagsCmd    `cmd:"" help:"Show the tag hierarchy with resource counts."`
	MCP     MCPCmd     `cmd:"" name:"mcp" help:"Serve the datasets to an assistant over MCP stdio."`
}

// userConfig loads the user config and applies flag and environment
// overrides.
func (g *Globals) userConfig() (*UserConfig, error) {
	cfg, err := loadUserConfig(g.Config)
	if err != nil {
		return nil, err
	}
	cfg.Paths.DB = cmp.Or(g.DB, cfg.Paths.DB)
	cfg.Paths.Data = cmp.Or(g.Data, cfg.Paths.Data)
	return cfg, nil
}

// openStore opens the configured store.
func (g *Globals) openStore() (*store.Store, *UserConfig, error) {
	cfg, err := g.userConfig()
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(cfg.Paths.DB)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("store: opened", "path", cfg.Paths.DB)
	return st, cfg, nil
}

// interruptContext is canceled on Ctrl-C so long syncs stop between
// requests and still record their run.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func main() {
	cli := CLI{}
	parser, err := kong.New(&cli,
		kong.Name("shelf"),
		kong.Description("Personal library: sync bookmarks and papers, import reading and listening history, build the site."),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shelf: %v\n", err)
		os.Exit(1)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	setupLogger(cli.Debug)

	ctx.Bind(&cli.Globals)

	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
