package api

import (
    "net/http"
    "time"

    "dronenav/internal/buildinfo"
)

// DebugJSON reports build info and the effective configuration without secrets.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    if _, ok := s.requireRole(w, r); !ok { return }
    c := s.Config
    writeJSON(w, http.StatusOK, map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":               c.Port,
            "store":              c.Store,
            "authMode":           c.AuthMode,
            "allowOrigins":       c.AllowOrigins,
            "rateRps":            c.RateRPS,
            "rateBurst":          c.RateBurst,
            "webhookMaxAttempts": c.WebhookMaxAttempts,
            "logLevel":           c.LogLevel,
            "hasDatabaseUrl":     c.DatabaseURL != "",
            "hasRedisUrl":        c.RedisURL != "",
        },
    })
}
