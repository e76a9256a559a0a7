// Command vcsyncctl runs operator tasks: schema migrations, JSON-LD context refresh and DID re-resolution.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"vcsync.org/internal/obs"
)

var version = "0.1.0"

type cliCtx struct {
	context.Context
	log *zap.Logger
}

type cli struct {
	LogLevel string `help:"Log level" default:"info" env:"VCSYNC_LOG_LEVEL"`

	Migrate  MigrateCmd       `cmd:"" help:"Manage the database schema"`
	Contexts ContextsCmd      `cmd:"" help:"Manage cached JSON-LD contexts"`
	DIDs     DIDsCmd          `cmd:"" name:"dids" help:"Manage organization DIDs"`
	Version  kong.VersionFlag `help:"Show version"`
}

func main() {
	_ = godotenv.Load()

	var c cli
	kctx := kong.Parse(&c,
		kong.UsageOnError(),
		kong.Name("vcsyncctl"),
		kong.Description("vcsyncctl runs vcsync maintenance tasks"),
		kong.Vars{"version": version},
	)

	logger, err := obs.NewLogger(c.LogLevel, "console", "vcsyncctl")
	kctx.FatalIfErrorf(err)
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kctx.FatalIfErrorf(kctx.Run(&cliCtx{Context: ctx, log: logger}))
}
