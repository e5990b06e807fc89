package store

import (
    "fmt"
    "strings"
    "time"
)

// Dialect covers the DDL and placeholder differences between the SQL
// backends. Queries are written with ? placeholders.
type Dialect interface {
    Name() string
    Placeholder(n int) string
    AutoIncrementPK() string
    JSONType() string
    Now() string
    TimestampType() string
    BoolType() string
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string               { return "sqlite" }
func (sqliteDialect) Placeholder(_ int) string   { return "?" }
func (sqliteDialect) AutoIncrementPK() string    { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) JSONType() string           { return "TEXT" }
func (sqliteDialect) Now() string                { return "CURRENT_TIMESTAMP" }
func (sqliteDialect) TimestampType() string      { return "TEXT" }
func (sqliteDialect) BoolType() string           { return "INTEGER" }

type postgresDialect struct{}

func (postgresDialect) Name() string             { return "postgres" }
func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }
func (postgresDialect) AutoIncrementPK() string  { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) JSONType() string         { return "JSONB" }
func (postgresDialect) Now() string              { return "NOW()" }
func (postgresDialect) TimestampType() string    { return "TIMESTAMPTZ" }
func (postgresDialect) BoolType() string         { return "BOOLEAN" }

// rebind rewrites ? placeholders with the dialect's own.
func rebind(d Dialect, query string) string {
    if d.Placeholder(1) == "?" {
        return query
    }
    n := 0
    var b strings.Builder
    for i := 0; i < len(query); i++ {
        if query[i] == '?' {
            n++
            b.WriteString(d.Placeholder(n))
        } else {
            b.WriteByte(query[i])
        }
    }
    return b.String()
}

// parseTime converts a scanned timestamp: SQLite yields strings, Postgres
// yields time.Time.
func parseTime(v any) time.Time {
    switch t := v.(type) {
    case time.Time:
        return t
    case []byte:
        return parseTime(string(t))
    case string:
        for _, layout := range []string{
            "2006-01-02 15:04:05",
            time.RFC3339Nano,
            "2006-01-02 15:04:05.999999999-07:00",
        } {
            if parsed, err := time.Parse(layout, t); err == nil {
                return parsed
            }
        }
    }
    return time.Time{}
}

func parseTimePtr(v any) *time.Time {
    t := parseTime(v)
    if t.IsZero() {
        return nil
    }
    return &t
}
