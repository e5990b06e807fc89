package api

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "sync"

    "github.com/rs/zerolog/log"

    "dronenav/internal/auth"
    "dronenav/internal/config"
    "dronenav/internal/store"
    "dronenav/internal/webhooks"
)

type Server struct {
    Store   store.Store
    Pub     *webhooks.Publisher
    Auth    *auth.Verifier
    Broker  EventBroker
    Limiter *RateLimiter
    Config  config.Config

    // background plan runs
    runCtx    context.Context
    cancelRun context.CancelFunc
    runs      sync.WaitGroup
}

// NewServer builds a Server from cfg: memory, sqlite or postgres store and an
// in-memory or Redis broker.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
    var s store.Store
    switch strings.ToLower(cfg.Store) {
    case "", "memory":
        s = store.NewMemory()
    case "sqlite":
        sq, err := store.OpenSQLite(ctx, cfg.SQLitePath)
        if err != nil { return nil, err }
        s = sq
    case "postgres":
        pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
        if err != nil { return nil, err }
        s = pg
    default:
        return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalid, cfg.Store)
    }
    // Broker selection
    var broker EventBroker = NewBroker()
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(ctx, cfg.RedisURL); err == nil {
            broker = rb
        } else {
            log.Warn().Err(err).Msg("redis unavailable, using in-process broker")
        }
    }
    v, err := auth.NewVerifier(cfg.AuthMode, cfg.AuthHMACSecret)
    if err != nil { return nil, err }
    srv := New(s, broker, v)
    srv.Config = cfg
    srv.Limiter = NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
    log.Info().Str("store", cfg.Store).Bool("redis", cfg.RedisURL != "").Str("auth", v.Mode).Msg("server configured")
    return srv, nil
}

// New wires a Server from ready-made parts.
func New(s store.Store, broker EventBroker, v *auth.Verifier) *Server {
    ctx, cancel := context.WithCancel(context.Background())
    return &Server{Store: s, Pub: webhooks.NewPublisher(s), Auth: v, Broker: broker, Config: config.Defaults(), runCtx: ctx, cancelRun: cancel}
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Config.WebhookMaxAttempts)
}

// Shutdown cancels background plan runs, waits for them to record their
// outcome and releases the store and broker.
func (s *Server) Shutdown() error {
    s.cancelRun()
    s.runs.Wait()
    var errs []error
    if c, ok := s.Broker.(interface{ Close() error }); ok { errs = append(errs, c.Close()) }
    if c, ok := s.Store.(interface{ Close() error }); ok { errs = append(errs, c.Close()) }
    return errors.Join(errs...)
}
