package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/opscore/internal"
	"github.com/starford/opscore/internal/ranking"
	"github.com/starford/opscore/internal/store"
	pkgconfig "github.com/starford/opscore/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if p := cmd.String("db"); p != "" {
		cfg.SQLite.Path = p
	}
	return cfg, nil
}

// withApp opens the store, runs fn and closes everything.
func withApp(ctx context.Context, cmd *cli.Command, fn func(*internal.App) (any, error)) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	app, err := internal.Open(ctx, internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer app.Close(context.Background())

	out, err := fn(app)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initDB(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.ApplySchema(ctx); err != nil {
		return err
	}
	return printJSON(map[string]string{"sqlite_path": cfg.SQLite.Path, "status": "ok"})
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	report, err := internal.Run(ctx, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return printJSON(report)
}

func normalizeCmd(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(a *internal.App) (any, error) {
		return a.Normalize(ctx)
	})
}

func gatesCmd(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(a *internal.App) (any, error) {
		res, err := a.Gates(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"health": internal.Classify(res),
			"gates":  res,
		}, nil
	})
}

func queuePending(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(a *internal.App) (any, error) {
		limit := a.Config().Queue.PendingLimit
		if cmd.IsSet("limit") {
			limit = int(cmd.Int("limit"))
		}
		return a.Queue().GetPending(ctx, limit)
	})
}

func queuePriority(ctx context.Context, cmd *cli.Command) error {
	p, err := strconv.Atoi(cmd.Args().First())
	if err != nil {
		return fmt.Errorf("priority must be 1, 2 or 3: %w", err)
	}
	return withApp(ctx, cmd, func(a *internal.App) (any, error) {
		return a.Queue().GetByPriority(ctx, p)
	})
}

func queueResolve(ctx context.Context, cmd *cli.Command) error {
	id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("item id must be an integer: %w", err)
	}
	return withApp(ctx, cmd, func(a *internal.App) (any, error) {
		return a.Queue().Resolve(ctx, id, cmd.String("actor"), cmd.String("action"))
	})
}

func queueSummary(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(a *internal.App) (any, error) {
		return a.Queue().Summary(ctx)
	})
}

func queuePurge(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(a *internal.App) (any, error) {
		qc := a.Config().Queue
		if cmd.IsSet("retention-days") {
			qc.RetentionDays = int(cmd.Int("retention-days"))
		}
		n, err := a.Queue().Purge(ctx, qc.Retention())
		if err != nil {
			return nil, err
		}
		return map[string]int64{"purged": n}, nil
	})
}

func rank(ctx context.Context, cmd *cli.Command) error {
	files := cmd.StringSlice("candidates")
	if len(files) == 0 {
		return fmt.Errorf("at least one --candidates file is required")
	}
	sources := make([]ranking.Source, 0, len(files))
	for _, f := range files {
		sources = append(sources, ranking.FileSource(f))
	}
	return withApp(ctx, cmd, func(a *internal.App) (any, error) {
		return a.Rank(ctx, internal.RankRequest{
			Sources:      sources,
			Profile:      cmd.String("profile"),
			Horizon:      cmd.String("horizon"),
			MaxItems:     int(cmd.Int("max")),
			AllowBlocked: cmd.Bool("allow-blocked"),
		})
	})
}

func main() {
	cmd := &cli.Command{
		Name:   "opscore",
		Usage:  "Normalize operational linkage, evaluate gates, maintain the resolution queue and rank what needs attention",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite path, overriding sqlite.path",
				Sources: cli.EnvVars("OPSCORE_DB"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init-db",
				Usage:  "Create the bootstrap schema in an empty store",
				Action: initDB,
			},
			{
				Name:   "cycle",
				Usage:  "Run normalize, gates and queue population once",
				Action: run,
			},
			{
				Name:   "normalize",
				Usage:  "Recompute derived link columns",
				Action: normalizeCmd,
			},
			{
				Name:   "gates",
				Usage:  "Evaluate gates without writing",
				Action: gatesCmd,
			},
			{
				Name:  "queue",
				Usage: "Inspect and resolve linkage defects",
				Commands: []*cli.Command{
					{
						Name:   "pending",
						Usage:  "List open items by priority",
						Action: queuePending,
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Usage: "Maximum items, 0 for all; defaults to queue.pending_limit"},
						},
					},
					{
						Name:      "priority",
						Usage:     "List open items of one priority",
						ArgsUsage: "<1|2|3>",
						Action:    queuePriority,
					},
					{
						Name:      "resolve",
						Usage:     "Mark an item resolved",
						ArgsUsage: "<id>",
						Action:    queueResolve,
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "actor", Usage: "Who resolved it", Required: true, Sources: cli.EnvVars("USER")},
							&cli.StringFlag{Name: "action", Usage: "What was done"},
						},
					},
					{
						Name:   "summary",
						Usage:  "Count open items by priority and issue type",
						Action: queueSummary,
					},
					{
						Name:   "purge",
						Usage:  "Delete resolved items past the retention window",
						Action: queuePurge,
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "retention-days", Usage: "Override queue.retention_days"},
						},
					},
				},
			},
			{
				Name:   "rank",
				Usage:  "Rank candidate items from YAML files",
				Action: rank,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "candidates", Usage: "Candidate YAML file, repeatable"},
					&cli.StringFlag{Name: "profile", Usage: "balanced, delivery_first or cash_first"},
					&cli.StringFlag{Name: "horizon", Usage: "now, today or this_week"},
					&cli.IntFlag{Name: "max", Usage: "Maximum items"},
					&cli.BoolFlag{Name: "allow-blocked", Usage: "Rank even when data_integrity fails"},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
