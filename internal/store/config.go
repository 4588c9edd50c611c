package store

import (
	"strings"
	"time"
)

// Config holds PostgreSQL settings for the template store.
// An empty URL disables the store.
type Config struct {
	URL             string        `env:"DATABASE_URL"`
	MigrationsTable string        `env:"DATABASE_MIGRATIONS_TABLE" envDefault:"courier_schema_migrations"`
	RetryAttempts   int           `env:"DATABASE_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"DATABASE_RETRY_INTERVAL" envDefault:"5s"`
	MaxConnIdleTime time.Duration `env:"DATABASE_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime time.Duration `env:"DATABASE_MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConns        int32         `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"5"`
	MinConns        int32         `env:"DATABASE_MIN_CONNS" envDefault:"1"`
	AutoMigrate     bool          `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`
}

// Enabled reports whether a connection URL is configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}
