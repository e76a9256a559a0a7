package main

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"vcsync.org/internal/config"
	"vcsync.org/internal/did"
	"vcsync.org/internal/jsonld"
)

type ContextsCmd struct {
	Fetch ContextsFetchCmd `cmd:"" help:"Fetch JSON-LD contexts and store them"`
}

type ContextsFetchCmd struct {
	DB      DBFlags       `embed:""`
	URL     []string      `name:"url" help:"Context URL to fetch; repeatable. Defaults to the well-known credential contexts."`
	Timeout time.Duration `help:"Per-URL fetch timeout" default:"15s"`
}

func (c *ContextsFetchCmd) Run(ctx *cliCtx) error {
	store, err := c.DB.open()
	if err != nil {
		return err
	}
	defer store.Close()

	svc := jsonld.NewService(store.Contexts(), nil,
		jsonld.WithHTTPClient(nil, c.Timeout),
		jsonld.WithDefaultURLs(config.DefaultContextURLs),
		jsonld.WithLogger(ctx.log),
	)
	report, err := svc.Refresh(ctx, c.URL)
	if err != nil {
		return err
	}
	for _, u := range report.Updated {
		fmt.Println("updated", u)
	}
	for _, f := range report.Failed {
		fmt.Printf("failed  %s: %s\n", f.URL, f.Error)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d context(s) failed", len(report.Failed))
	}
	return nil
}

type DIDsCmd struct {
	Resolve DIDsResolveCmd `cmd:"" help:"Retry resolution of SUBMITTED and RESOLUTION_FAILED DIDs"`
}

type DIDsResolveCmd struct {
	DB      DBFlags       `embed:""`
	Limit   int           `help:"Maximum DIDs to process; 0 means all" default:"100"`
	Timeout time.Duration `help:"Per-DID fetch timeout" default:"10s"`
}

func (c *DIDsResolveCmd) Run(ctx *cliCtx) error {
	store, err := c.DB.open()
	if err != nil {
		return err
	}
	defer store.Close()

	svc := did.NewService(store.DIDs(), nil, did.NewHTTPResolver(nil, c.Timeout), did.WithLogger(ctx.log))
	subs, err := svc.ResolvePending(ctx, c.Limit)
	resolved := 0
	for _, s := range subs {
		if s.Resolved {
			resolved++
		}
	}
	ctx.log.Info("dids.resolve_pending",
		zap.Int("processed", len(subs)),
		zap.Int("resolved", resolved),
	)
	fmt.Printf("processed %d, resolved %d\n", len(subs), resolved)
	return err
}
