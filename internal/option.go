package internal

import (
	"log/slog"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/starford/opscore/internal/store"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	logger  *slog.Logger
	db      *store.DB
	now     func() time.Time
	readers []sdkmetric.Reader
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the JSON logger built from the config.
func WithLogger(logger *slog.Logger) Option {
	return func(a *application) {
		a.logger = logger
	}
}

// WithStore uses an already-open store instead of opening the configured path.
// The caller keeps ownership and must close it.
func WithStore(db *store.DB) Option {
	return func(a *application) {
		a.db = db
	}
}

// WithClock overrides the time source for every stage.
func WithClock(now func() time.Time) Option {
	return func(a *application) {
		a.now = now
	}
}

// WithMetricReader attaches a metric reader when telemetry is enabled.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(a *application) {
		a.readers = append(a.readers, r)
	}
}
