package main

import (
	"errors"
	"fmt"
	"os"

	"vcsync.org/internal/migrate"
	"vcsync.org/internal/store/pg"
)

type DBFlags struct {
	DSN string `help:"PostgreSQL DSN" env:"VCSYNC_PG_DSN" required:""`
}

func (f DBFlags) open() (*pg.Store, error) {
	return pg.Open(f.DSN)
}

type MigrateCmd struct {
	Up     MigrateUpCmd     `cmd:"" help:"Apply pending migrations"`
	Down   MigrateDownCmd   `cmd:"" help:"Roll back the latest migration"`
	Status MigrateStatusCmd `cmd:"" help:"List applied migrations"`
	Seed   MigrateSeedCmd   `cmd:"" help:"Apply pending seed files"`
}

type MigrateUpCmd struct {
	DB DBFlags `embed:""`
}

func (c *MigrateUpCmd) Run(ctx *cliCtx) error {
	return withManager(ctx, c.DB, nil, func(m *migrate.Manager) error {
		applied, err := m.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
		if err == nil && len(applied) == 0 {
			fmt.Println("schema is up to date")
		}
		return err
	})
}

type MigrateDownCmd struct {
	DB DBFlags `embed:""`
}

func (c *MigrateDownCmd) Run(ctx *cliCtx) error {
	return withManager(ctx, c.DB, nil, func(m *migrate.Manager) error {
		name, err := m.Down(ctx)
		if errors.Is(err, migrate.ErrNothingApplied) {
			fmt.Println("nothing to roll back")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("rolled back", name)
		return nil
	})
}

type MigrateStatusCmd struct {
	DB DBFlags `embed:""`
}

func (c *MigrateStatusCmd) Run(ctx *cliCtx) error {
	return withManager(ctx, c.DB, nil, func(m *migrate.Manager) error {
		history, err := m.Status(ctx)
		for _, name := range history {
			fmt.Println(name)
		}
		return err
	})
}

type MigrateSeedCmd struct {
	DB    DBFlags `embed:""`
	Seeds string  `help:"Directory of *.sql seed files" type:"existingdir" required:""`
}

func (c *MigrateSeedCmd) Run(ctx *cliCtx) error {
	opts := []migrate.Option{migrate.WithSeeds(os.DirFS(c.Seeds))}
	return withManager(ctx, c.DB, opts, func(m *migrate.Manager) error {
		applied, err := m.Seed(ctx)
		for _, name := range applied {
			fmt.Println("seeded", name)
		}
		return err
	})
}

func withManager(ctx *cliCtx, f DBFlags, opts []migrate.Option, fn func(*migrate.Manager) error) error {
	store, err := f.open()
	if err != nil {
		return err
	}
	defer store.Close()
	opts = append(opts, migrate.WithLogger(ctx.log))
	return fn(migrate.NewManager(store.DB(), nil, opts...))
}
