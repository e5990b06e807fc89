// Package config loads service and CLI settings from an optional YAML file
// and the process environment. Environment variables win over the file.
package config

import (
    "errors"
    "fmt"
    "os"
    "strconv"
    "strings"

    yaml "gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid config")

type Config struct {
    Port string `yaml:"port"`

    // Store selects the backend: memory, postgres or sqlite.
    Store       string `yaml:"store"`
    DatabaseURL string `yaml:"databaseUrl"`
    SQLitePath  string `yaml:"sqlitePath"`
    RedisURL    string `yaml:"redisUrl"`

    AuthMode       string `yaml:"authMode"` // dev, hmac
    AuthHMACSecret string `yaml:"authHmacSecret"`

    RateRPS   float64 `yaml:"rateRps"`
    RateBurst int     `yaml:"rateBurst"`

    WebhookMaxAttempts int `yaml:"webhookMaxAttempts"`

    LogLevel  string `yaml:"logLevel"`
    LogFormat string `yaml:"logFormat"` // console, json

    AllowOrigins string `yaml:"allowOrigins"`
}

// Defaults is a runnable in-memory configuration.
func Defaults() Config {
    return Config{
        Port:               "8080",
        Store:              "memory",
        SQLitePath:         "dronenav.db",
        AuthMode:           "dev",
        RateRPS:            10,
        RateBurst:          20,
        WebhookMaxAttempts: 8,
        LogLevel:           "info",
        LogFormat:          "json",
    }
}

// Load reads path (if not empty) over Defaults and applies environment
// overrides. CONFIG_FILE is used when path is empty.
func Load(path string) (Config, error) {
    cfg := Defaults()
    if path == "" {
        path = os.Getenv("CONFIG_FILE")
    }
    if path != "" {
        data, err := os.ReadFile(path)
        if err != nil {
            return Config{}, fmt.Errorf("read config: %w", err)
        }
        if err := yaml.Unmarshal(data, &cfg); err != nil {
            return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalid, path, err)
        }
    }
    if err := cfg.applyEnv(os.LookupEnv); err != nil {
        return Config{}, err
    }
    return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
    str := map[string]*string{
        "PORT":             &c.Port,
        "DATABASE_URL":     &c.DatabaseURL,
        "DB_DRIVER":        &c.Store,
        "SQLITE_PATH":      &c.SQLitePath,
        "REDIS_URL":        &c.RedisURL,
        "AUTH_MODE":        &c.AuthMode,
        "AUTH_HMAC_SECRET": &c.AuthHMACSecret,
        "LOG_LEVEL":        &c.LogLevel,
        "LOG_FORMAT":       &c.LogFormat,
        "ALLOW_ORIGINS":    &c.AllowOrigins,
    }
    for k, p := range str {
        if v, ok := lookup(k); ok && v != "" {
            *p = v
        }
    }
    // a database URL alone implies postgres, as before DB_DRIVER existed
    if _, ok := lookup("DB_DRIVER"); !ok && c.DatabaseURL != "" && c.Store == "memory" {
        c.Store = "postgres"
    }
    if v, ok := lookup("RATE_RPS"); ok && v != "" {
        f, err := strconv.ParseFloat(v, 64)
        if err != nil {
            return fmt.Errorf("%w: RATE_RPS: %v", ErrInvalid, err)
        }
        c.RateRPS = f
    }
    ints := map[string]*int{"RATE_BURST": &c.RateBurst, "WEBHOOK_MAX_ATTEMPTS": &c.WebhookMaxAttempts}
    for k, p := range ints {
        if v, ok := lookup(k); ok && v != "" {
            n, err := strconv.Atoi(v)
            if err != nil {
                return fmt.Errorf("%w: %s: %v", ErrInvalid, k, err)
            }
            *p = n
        }
    }
    return nil
}

func (c Config) Validate() error {
    switch strings.ToLower(c.Store) {
    case "memory", "sqlite", "postgres":
    default:
        return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store)
    }
    if strings.EqualFold(c.Store, "postgres") && c.DatabaseURL == "" {
        return fmt.Errorf("%w: postgres store needs DATABASE_URL", ErrInvalid)
    }
    switch strings.ToLower(c.AuthMode) {
    case "dev", "":
    case "hmac":
        if c.AuthHMACSecret == "" {
            return fmt.Errorf("%w: hmac auth needs AUTH_HMAC_SECRET", ErrInvalid)
        }
    default:
        return fmt.Errorf("%w: unknown auth mode %q", ErrInvalid, c.AuthMode)
    }
    if c.RateRPS < 0 || c.RateBurst < 0 {
        return fmt.Errorf("%w: negative rate limit", ErrInvalid)
    }
    if c.WebhookMaxAttempts <= 0 {
        return fmt.Errorf("%w: WEBHOOK_MAX_ATTEMPTS must be positive", ErrInvalid)
    }
    return nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
    if strings.Contains(c.Port, ":") {
        return c.Port
    }
    return ":" + c.Port
}
