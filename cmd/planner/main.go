// Command planner reads a Hash Code "Delivery" problem, plans every order
// greedily and writes the drone command log.
package main

import (
    "context"
    "errors"
    "flag"
    "fmt"
    "io"
    "os"
    "os/signal"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "dronenav/internal/buildinfo"
    "dronenav/internal/config"
    "dronenav/internal/integrations"
    "dronenav/internal/integrations/hashcode"
    "dronenav/internal/logging"
    "dronenav/internal/model"
    "dronenav/internal/plan"
    "dronenav/internal/store"
)

type options struct {
    input   string
    out     string
    seed    int64
    shuffle bool
    db      string
    tenant  string
}

func main() {
    var o options
    fs := flag.NewFlagSet("planner", flag.ExitOnError)
    fs.Int64Var(&o.seed, "seed", 0, "shuffle seed (0 picks one from the clock)")
    fs.BoolVar(&o.shuffle, "shuffle", false, "plan orders in a seeded random order")
    fs.StringVar(&o.out, "out", "-", "command output file (- for stdout)")
    fs.StringVar(&o.db, "db", "", "SQLite file to record the run in")
    fs.StringVar(&o.tenant, "tenant", "t_local", "tenant for recorded runs")
    cfgPath := fs.String("config", "", "YAML config file for logging settings")
    version := fs.Bool("version", false, "print version and exit")
    fs.Usage = func() {
        fmt.Fprintf(fs.Output(), "usage: planner [flags] [input|-]\n")
        fs.PrintDefaults()
    }
    _ = fs.Parse(os.Args[1:])
    if *version {
        fmt.Println(buildinfo.String())
        return
    }
    o.input = fs.Arg(0)

    cfg, err := loadConfig(*cfgPath)
    if err != nil {
        fmt.Fprintln(os.Stderr, err)
        os.Exit(2)
    }
    logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
    defer stop()
    if err := run(ctx, o, os.Stdin, os.Stdout); err != nil {
        log.Error().Err(err).Msg("planner failed")
        if errors.Is(err, hashcode.ErrMalformed) || errors.Is(err, plan.ErrInvalidProblem) {
            os.Exit(2)
        }
        os.Exit(1)
    }
}

// loadConfig reads the shared config and environment. Logs go to the
// console unless a config file or LOG_FORMAT chooses a format.
func loadConfig(path string) (config.Config, error) {
    cfg, err := config.Load(path)
    if err != nil {
        return config.Config{}, err
    }
    if path == "" && os.Getenv("CONFIG_FILE") == "" && os.Getenv("LOG_FORMAT") == "" {
        cfg.LogFormat = "console"
    }
    return cfg, nil
}

func run(ctx context.Context, o options, stdin io.Reader, stdout io.Writer) error {
    var src integrations.ProblemSource = hashcode.FileSource{Path: o.input, Stdin: stdin}
    in, err := src.Fetch(ctx)
    if err != nil {
        return fmt.Errorf("read %s: %w", src.Name(), err)
    }
    problem, err := plan.FromModel(in)
    if err != nil {
        return err
    }

    ordering := plan.InputOrder
    if o.shuffle {
        if o.seed == 0 {
            o.seed = time.Now().UnixNano()
        }
        ordering = plan.Shuffled(o.seed)
    }
    start := time.Now()
    res, err := plan.Run(ctx, problem, plan.Options{Ordering: ordering})
    if err != nil {
        return err
    }

    var sink integrations.CommandSink = hashcode.Writer{}
    out := stdout
    if o.out != "" && o.out != "-" {
        f, err := os.Create(o.out)
        if err != nil {
            return err
        }
        defer f.Close()
        out = f
    }
    if err := sink.WriteCommands(out, res.Actions); err != nil {
        return fmt.Errorf("write commands: %w", err)
    }

    log.Info().
        Str("input", src.Name()).
        Bool("shuffled", o.shuffle).
        Int64("seed", o.seed).
        Int("accepted", res.Accepted).
        Int("rejected", res.Rejected).
        Int("actions", len(res.Actions)).
        Int("score", res.Score()).
        Msg("plan written")

    if o.db != "" {
        return record(ctx, o, res, time.Since(start))
    }
    return nil
}

// record stores the run in a SQLite file so it shows up next to API runs.
func record(ctx context.Context, o options, res plan.Result, took time.Duration) error {
    db, err := store.OpenSQLite(ctx, o.db)
    if err != nil {
        return err
    }
    defer db.Close()

    now := time.Now().UTC().Format(time.RFC3339)
    run := model.PlanRun{
        ID:          uuid.Must(uuid.NewV7()).String(),
        TenantID:    o.tenant,
        Name:        o.input,
        Status:      model.PlanCompleted,
        Seed:        o.seed,
        Shuffled:    o.shuffle,
        CreatedAt:   now,
        CompletedAt: now,
    }
    res.Fill(&run)
    if err := db.PutPlan(ctx, run); err != nil {
        return err
    }
    ordering := "input"
    if o.shuffle {
        ordering = "shuffled"
    }
    pm := model.PlanMetrics{PlanID: run.ID, Ordering: ordering, Seed: o.seed, DurationMs: took.Milliseconds(), Stats: run.Stats}
    if err := db.SavePlanMetrics(ctx, o.tenant, pm); err != nil {
        return err
    }
    log.Info().Str("plan", run.ID).Str("db", o.db).Msg("run recorded")
    return nil
}
