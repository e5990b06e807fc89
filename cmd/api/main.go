package main

import (
    "context"
    "errors"
    "flag"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"
    "golang.org/x/sync/errgroup"

    "dronenav/internal/api"
    "dronenav/internal/buildinfo"
    "dronenav/internal/config"
    "dronenav/internal/logging"
    "dronenav/internal/metrics"
)

func main() {
    cfgPath := flag.String("config", "", "YAML config file (default $CONFIG_FILE)")
    flag.Parse()

    cfg, err := config.Load(*cfgPath)
    if err != nil {
        logging.Setup("info", "json", os.Stderr)
        log.Fatal().Err(err).Msg("load config")
    }
    logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
    metrics.RegisterDefault()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    srvDeps, err := api.NewServer(ctx, cfg)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init server")
    }

    srv := &http.Server{
        Addr:              cfg.Addr(),
        Handler:           logMiddleware(srvDeps.Routes()),
        ReadHeaderTimeout: 5 * time.Second,
    }

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error {
        log.Info().Str("addr", srv.Addr).Str("version", buildinfo.String()).Msg("API listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            return err
        }
        return nil
    })
    // Start webhook worker
    g.Go(func() error {
        return srvDeps.NewWebhookWorker().Run(gctx)
    })
    g.Go(func() error {
        <-gctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        defer cancel()
        log.Info().Msg("shutting down")
        return srv.Shutdown(shutdownCtx)
    })

    err = g.Wait()
    if cerr := srvDeps.Shutdown(); cerr != nil {
        log.Error().Err(cerr).Msg("close resources")
    }
    if err != nil && !errors.Is(err, context.Canceled) {
        log.Fatal().Err(err).Msg("server error")
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := api.NewStatusRecorder(w)
        next.ServeHTTP(rec, r)
        log.Info().
            Str("remote", r.RemoteAddr).
            Str("method", r.Method).
            Str("path", r.URL.Path).
            Int("status", rec.Status()).
            Dur("took", time.Since(start)).
            Msg("request")
    })
}
