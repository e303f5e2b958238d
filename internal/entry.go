// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/starford/opscore/internal/apperr"
	"github.com/starford/opscore/internal/gates"
	"github.com/starford/opscore/internal/normalize"
	"github.com/starford/opscore/internal/ranking"
	"github.com/starford/opscore/internal/resolution"
	"github.com/starford/opscore/internal/store"
	"github.com/starford/opscore/internal/telemetry"
)

// Health is the cycle classification derived from the gate results.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthBlocked  Health = "blocked"
)

// Classify derives a Health from gate results: a failed data_integrity gate blocks,
// any other failure degrades.
func Classify(res *gates.Results) Health {
	switch {
	case !res.DataIntegrity():
		return HealthBlocked
	case len(res.Failing()) > 0:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}

// CycleReport is the outcome of one batch cycle.
type CycleReport struct {
	CycleID     string                    `json:"cycle_id"`
	StartedAt   time.Time                 `json:"started_at"`
	DurationMS  int64                     `json:"duration_ms"`
	Normalize   normalize.Counts          `json:"normalize"`
	Gates       *gates.Results            `json:"gates"`
	GatesDigest string                    `json:"gates_digest"`
	Queue       resolution.PopulateResult `json:"queue"`
	Purged      int64                     `json:"purged"`
	Health      Health                    `json:"health"`
	Failing     []string                  `json:"failing,omitempty"`
}

// RankRequest selects what to rank and how.
type RankRequest struct {
	Sources      []ranking.Source
	Profile      string
	Horizon      string
	MaxItems     int
	AllowBlocked bool
}

// RankReport is a ranked snapshot plus the integrity state it was produced under.
type RankReport struct {
	Profile       string           `json:"profile"`
	Horizon       ranking.Horizon  `json:"horizon"`
	DataIntegrity bool             `json:"data_integrity"`
	Items         []ranking.Ranked `json:"items"`
	Digest        string           `json:"digest"`
}

// App is one opened store with its telemetry. Construct one per invocation.
type App struct {
	cfg     *Config
	logger  *slog.Logger
	db      *store.DB
	ownsDB  bool
	now     func() time.Time
	tel     *telemetry.Provider
	metrics *telemetry.Metrics
}

// Open builds an App: logger, telemetry, store, and a schema check.
func Open(ctx context.Context, opts ...Option) (*App, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		// Stdout carries command output, so logs go to stderr.
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
		slog.SetDefault(logger)
	}
	now := app.now
	if now == nil {
		now = time.Now
	}

	tel, err := telemetry.Init(ctx, cfg.Telemetry.toTelemetry(), app.readers...)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	metrics, err := telemetry.NewMetrics(tel.Meter)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, db: app.db, now: now, tel: tel, metrics: metrics}
	if a.db == nil {
		if a.db, err = store.Open(cfg.SQLite.Path); err != nil {
			_ = tel.Shutdown(ctx)
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.ownsDB = true
	}
	if err := a.db.VerifySchema(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	logger.Debug("opened",
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("telemetry", cfg.Telemetry.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return a, nil
}

// Close flushes telemetry and closes the store if the App opened it.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.ownsDB {
		errs = append(errs, a.db.Close())
	}
	errs = append(errs, a.tel.Shutdown(ctx))
	return errors.Join(errs...)
}

// Config returns the configuration the App was opened with.
func (a *App) Config() *Config {
	return a.cfg
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Normalize runs one normalizer pass.
func (a *App) Normalize(ctx context.Context) (normalize.Counts, error) {
	ctx, span := telemetry.StartSpan(ctx, a.tel.Tracer, "normalize")
	defer span.End()

	counts, err := normalize.New(a.db, a.logger, normalize.WithClock(a.now)).Run(ctx)
	if err != nil {
		span.RecordError(err)
		return counts, err
	}
	for entity, n := range map[string]int{
		"project":       counts.Projects,
		"task":          counts.Tasks,
		"communication": counts.Communications,
		"invoice":       counts.Invoices,
	} {
		a.metrics.RowsNormalized.Add(ctx, int64(n), metric.WithAttributes(telemetry.AttrEntity.String(entity)))
	}
	a.metrics.RowsSkipped.Add(ctx, int64(counts.Skipped))
	return counts, nil
}

// Gates evaluates every gate against the current store.
func (a *App) Gates(ctx context.Context) (*gates.Results, error) {
	ctx, span := telemetry.StartSpan(ctx, a.tel.Tracer, "gates")
	defer span.End()

	ev := gates.NewEvaluator(a.db, a.logger)
	res, err := ev.Evaluate(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	for _, g := range res.Failing() {
		a.metrics.GateFailures.Add(ctx, 1, metric.WithAttributes(telemetry.AttrGate.String(g.Name)))
	}
	return res, nil
}

// Queue returns the resolution queue over the App's store.
func (a *App) Queue() *resolution.Queue {
	return resolution.NewQueue(a.db, a.logger, resolution.WithClock(a.now))
}

// Cycle runs normalize, gates, queue population and retention in that order.
// Each stage only starts once the previous one has committed.
func (a *App) Cycle(ctx context.Context) (*CycleReport, error) {
	started := a.now()
	id := uuid.NewString()
	ctx, span := telemetry.StartSpan(ctx, a.tel.Tracer, "cycle", telemetry.AttrCycleID.String(id))
	defer span.End()
	logger := a.logger.With(slog.String("cycle_id", id))
	logger.Info("cycle: start")

	report := &CycleReport{CycleID: id, StartedAt: started.UTC()}
	var err error

	if report.Normalize, err = a.Normalize(ctx); err != nil {
		return nil, fmt.Errorf("cycle %s: normalize: %w", id, err)
	}
	if report.Gates, err = a.Gates(ctx); err != nil {
		return nil, fmt.Errorf("cycle %s: gates: %w", id, err)
	}
	if report.GatesDigest, err = report.Gates.Digest(); err != nil {
		return nil, fmt.Errorf("cycle %s: %w", id, err)
	}

	q := a.Queue()
	if report.Queue, err = q.Populate(ctx); err != nil {
		return nil, fmt.Errorf("cycle %s: populate queue: %w", id, err)
	}
	for issue, n := range report.Queue.Created {
		a.metrics.QueueItemsCreated.Add(ctx, int64(n), metric.WithAttributes(telemetry.AttrIssue.String(string(issue))))
	}
	if report.Purged, err = q.Purge(ctx, a.cfg.Queue.Retention()); err != nil {
		return nil, fmt.Errorf("cycle %s: purge queue: %w", id, err)
	}
	a.metrics.QueueItemsPurged.Add(ctx, report.Purged)

	report.Health = Classify(report.Gates)
	for _, g := range report.Gates.Failing() {
		report.Failing = append(report.Failing, g.Name)
	}
	elapsed := a.now().Sub(started)
	report.DurationMS = elapsed.Milliseconds()
	a.metrics.CycleDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(telemetry.AttrOutcome.String(string(report.Health))))

	logger.Info("cycle: done",
		slog.String("health", string(report.Health)),
		slog.Int("rows_changed", report.Normalize.Total()),
		slog.Int("queue_created", report.Queue.Total()),
		slog.Int64("purged", report.Purged))
	return report, nil
}

// Rank evaluates gates, refuses to rank over contradictory data unless explicitly
// allowed, then ranks the candidates from every source.
func (a *App) Rank(ctx context.Context, req RankRequest) (*RankReport, error) {
	profileName := req.Profile
	if profileName == "" {
		profileName = a.cfg.Ranking.DefaultProfile
	}
	profile, err := ranking.LookupProfile(profileName)
	if err != nil {
		return nil, err
	}
	horizonName := req.Horizon
	if horizonName == "" {
		horizonName = a.cfg.Ranking.DefaultHorizon
	}
	horizon, err := ranking.ParseHorizon(horizonName)
	if err != nil {
		return nil, err
	}
	maxItems := req.MaxItems
	if maxItems <= 0 {
		maxItems = a.cfg.Ranking.MaxItems
	}

	ctx, span := telemetry.StartSpan(ctx, a.tel.Tracer, "rank",
		telemetry.AttrProfile.String(profile.Name), telemetry.AttrHorizon.String(string(horizon)))
	defer span.End()

	res, err := a.Gates(ctx)
	if err != nil {
		return nil, err
	}
	if !res.DataIntegrity() {
		if !req.AllowBlocked {
			g, _ := res.Get(gates.DataIntegrity)
			return nil, fmt.Errorf("rank: %s: %w", g.Reason, apperr.ErrIntegrityBlocked)
		}
		a.logger.Warn("rank: data integrity failed, ranking anyway")
	}

	items, err := ranking.RankSources(ctx, req.Sources, profile, horizon, maxItems)
	if err != nil {
		return nil, err
	}
	digest, err := ranking.Digest(items)
	if err != nil {
		return nil, err
	}
	return &RankReport{
		Profile:       profile.Name,
		Horizon:       horizon,
		DataIntegrity: res.DataIntegrity(),
		Items:         items,
		Digest:        digest,
	}, nil
}

// Run opens the configured store, runs one cycle and closes everything.
func Run(ctx context.Context, opts ...Option) (*CycleReport, error) {
	a, err := Open(ctx, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := a.Close(context.Background()); cerr != nil {
			a.logger.Error("close failed", slog.String("error", cerr.Error()))
		}
	}()
	return a.Cycle(ctx)
}
