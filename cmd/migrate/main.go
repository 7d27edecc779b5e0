package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command> [arg]

commands:
  up              apply all pending migrations
  down            roll back the latest migration
  to <version>    migrate up or down to YYYYMMDDHHMMSS
  status          list migrations and whether they are applied
  create <name>   write a new empty migration into -dir
  validate        check migration names and goose markers
`

type command struct {
	needsDB bool
	nargs   int
	run     func(ctx context.Context, env *runEnv) error
}

type runEnv struct {
	dir      string
	args     []string
	migrator *migrate.Migrator
}

var commands = map[string]command{
	"up": {
		needsDB: true,
		run: func(ctx context.Context, e *runEnv) error {
			return report(e.migrator.Up(ctx))
		},
	},
	"down": {
		needsDB: true,
		run: func(ctx context.Context, e *runEnv) error {
			return report(e.migrator.Down(ctx))
		},
	},
	"to": {
		needsDB: true,
		nargs:   1,
		run: func(ctx context.Context, e *runEnv) error {
			return report(e.migrator.To(ctx, e.args[0]))
		},
	},
	"status": {
		needsDB: true,
		run:     printStatus,
	},
	"create": {
		nargs: 1,
		run: func(_ context.Context, e *runEnv) error {
			path, err := migrate.Create(e.dir, e.args[0], time.Now())
			if err == nil {
				fmt.Println("created", path)
			}
			return err
		},
	},
	"validate": {
		run: func(_ context.Context, e *runEnv) error {
			return migrate.Validate(migrate.Source(e.dir))
		},
	},
}

func main() {
	dir := flag.String("dir", "", "migrations directory (default: migrations embedded in the binary; create uses "+migrate.DefaultDir+")")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	name := flag.Arg(0)
	cmd, ok := commands[name]
	if !ok || flag.NArg()-1 != cmd.nargs {
		flag.Usage()
		os.Exit(2)
	}

	rt, err := bootstrap.Start(context.Background(), bootstrap.Options{Kind: "migrate", SkipDatabase: true})
	if err != nil {
		bootstrap.Fatal(context.Background(), nil, "migrate bootstrap failed", err)
	}
	ctx, stop := rt.SignalContext(context.Background())
	ctx = rt.Logger.WithFields(ctx, map[string]any{"cmd": name, "dir": *dir})

	env := &runEnv{dir: *dir, args: flag.Args()[1:]}
	if name == "create" && env.dir == "" {
		env.dir = migrate.DefaultDir
	}
	if cmd.needsDB {
		if err := attachMigrator(ctx, rt, env); err != nil {
			stop()
			_ = rt.Close()
			bootstrap.Fatal(ctx, rt.Logger, "migrator unavailable", err)
		}
	}

	err = cmd.run(ctx, env)
	stop()
	if cerr := rt.Close(); cerr != nil {
		rt.Logger.Error(ctx, "migrate close", cerr)
	}
	if err != nil {
		bootstrap.Fatal(ctx, rt.Logger, "migrate "+name+" failed", err)
	}
	rt.Logger.Info(ctx, "migrate "+name+" done")
}

func attachMigrator(ctx context.Context, rt *bootstrap.Runtime, env *runEnv) error {
	client, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		return err
	}
	rt.OnClose("database", client.Close)

	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	env.migrator, err = migrate.New(sqlDB, migrate.Source(env.dir))
	return err
}

func printStatus(ctx context.Context, e *runEnv) error {
	statuses, err := e.migrator.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tFILE")
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version, state, s.Path)
	}
	return w.Flush()
}

func report(results []migrate.Result, err error) error {
	for _, r := range results {
		fmt.Printf("%-6s %d %s\n", r.Direction, r.Version, r.Path)
	}
	if err == nil && len(results) == 0 {
		fmt.Println("nothing to do")
	}
	return err
}
