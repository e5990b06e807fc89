// Package logging configures the global zerolog logger.
package logging

import (
    "io"
    "os"
    "strings"
    "time"

    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
)

// Setup sets the global level and output. Unknown levels fall back to info.
func Setup(level, format string, out io.Writer) zerolog.Logger {
    if out == nil {
        out = os.Stderr
    }
    lvl, err := zerolog.ParseLevel(strings.ToLower(level))
    if err != nil || level == "" {
        lvl = zerolog.InfoLevel
    }
    zerolog.SetGlobalLevel(lvl)
    zerolog.TimeFieldFormat = time.RFC3339Nano
    if strings.EqualFold(format, "console") {
        out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
    }
    log.Logger = zerolog.New(out).With().Timestamp().Logger()
    return log.Logger
}
