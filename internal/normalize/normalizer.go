// Package normalize recomputes derived link-status, foreign-key and aging columns
// from the current base-table state. Every pass is a fixed point: running it again
// with no intervening writes changes nothing.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/opscore/internal/models"
	"github.com/starford/opscore/internal/store"
)

// Counts reports rows written per entity type, plus rows skipped as malformed.
type Counts struct {
	Projects       int `json:"projects"`
	Tasks          int `json:"tasks"`
	Communications int `json:"communications"`
	Invoices       int `json:"invoices"`
	Skipped        int `json:"skipped"`
}

// Total returns the number of rows written.
func (c Counts) Total() int {
	return c.Projects + c.Tasks + c.Communications + c.Invoices
}

// PassResult is the outcome of one sub-pass.
type PassResult struct {
	Changed int
	Skipped int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the time source used for aging and updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// Normalizer derives columns from base tables. Construct one per cycle.
type Normalizer struct {
	db     *store.DB
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Normalizer over db.
func New(db *store.DB, logger *slog.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{db: db, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run executes every sub-pass. Projects+tasks, communications and invoices write
// disjoint columns and run concurrently.
func (n *Normalizer) Run(ctx context.Context) (Counts, error) {
	var projects, tasks, comms, invoices PassResult

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if projects, err = n.NormalizeProjects(gCtx); err != nil {
			return err
		}
		tasks, err = n.NormalizeTasks(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		comms, err = n.NormalizeCommunications(gCtx)
		return err
	})
	g.Go(func() error {
		var err error
		invoices, err = n.NormalizeInvoices(gCtx)
		return err
	})
	err := g.Wait()

	// Sub-passes commit row by row, so report what was written even on failure.
	c := Counts{
		Projects:       projects.Changed,
		Tasks:          tasks.Changed,
		Communications: comms.Changed,
		Invoices:       invoices.Changed,
		Skipped:        projects.Skipped + tasks.Skipped + comms.Skipped + invoices.Skipped,
	}
	if err != nil {
		return c, err
	}
	n.logger.Info("normalize: done",
		slog.Int("projects", c.Projects),
		slog.Int("tasks", c.Tasks),
		slog.Int("communications", c.Communications),
		slog.Int("invoices", c.Invoices),
		slog.Int("skipped", c.Skipped))
	return c, nil
}

// NormalizeProjects sets each project's client from its brand, or null when internal.
// Non-internal projects without a brand have nothing to derive from and are left alone.
func (n *Normalizer) NormalizeProjects(ctx context.Context) (PassResult, error) {
	var res PassResult
	projects, skipped, err := n.db.Projects(ctx)
	if err != nil {
		return res, fmt.Errorf("normalize projects: %w", err)
	}
	res.Skipped += n.reportSkipped("projects", skipped)
	brands, skipped, err := n.db.Brands(ctx)
	if err != nil {
		return res, fmt.Errorf("normalize projects: %w", err)
	}
	n.reportSkipped("projects", skipped)

	for _, id := range sortedKeys(projects) {
		p := projects[id]
		var want *string
		switch {
		case p.IsInternal:
			want = nil
		case p.BrandID != nil:
			if b, ok := brands[*p.BrandID]; ok {
				want = b.ClientID
			}
		default:
			continue
		}
		if sameRef(p.ClientID, want) {
			continue
		}
		if err := n.db.UpdateProjectClient(ctx, p.ID, want, n.now()); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			n.logger.Warn("normalize: project update failed", slog.String("project_id", p.ID), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		res.Changed++
	}
	return res, nil
}

// NormalizeTasks classifies every task with TaskRules and writes only changed tuples.
func (n *Normalizer) NormalizeTasks(ctx context.Context) (PassResult, error) {
	var res PassResult
	g, err := n.db.LoadLinkGraph(ctx)
	if err != nil {
		return res, fmt.Errorf("normalize tasks: %w", err)
	}
	res.Skipped += n.reportSkipped("tasks", g.Skipped)

	for _, t := range g.Tasks {
		d := ClassifyTask(ResolveChain(t, g))
		if t.Links().Equal(d.Links) {
			continue
		}
		if err := n.db.UpdateTaskLinks(ctx, t.ID, d.Links, n.now()); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			n.logger.Warn("normalize: task update failed", slog.String("task_id", t.ID), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		n.logger.Debug("normalize: task relinked",
			slog.String("task_id", t.ID),
			slog.String("rule", d.Rule.Name),
			slog.String("project_link", d.Links.ProjectLinkStatus.String()),
			slog.String("client_link", d.Links.ClientLinkStatus.String()))
		res.Changed++
	}
	return res, nil
}

// NormalizeInvoices writes aging buckets for valid-AR invoices. Other rows keep
// whatever bucket they have.
func (n *Normalizer) NormalizeInvoices(ctx context.Context) (PassResult, error) {
	var res PassResult
	invoices, skipped, err := n.db.Invoices(ctx)
	if err != nil {
		return res, fmt.Errorf("normalize invoices: %w", err)
	}
	res.Skipped += n.reportSkipped("invoices", skipped)
	today := n.now()

	for _, inv := range invoices {
		if !inv.ValidAR() {
			continue
		}
		due, err := models.ParseDate(*inv.DueDate)
		if err != nil {
			n.logger.Warn("normalize: skipping invoice", slog.String("invoice_id", inv.ID), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		want := AgingBucketFor(models.DaysBetween(due, today))
		if inv.AgingBucket == want {
			continue
		}
		if err := n.db.UpdateInvoiceAging(ctx, inv.ID, want); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			n.logger.Warn("normalize: invoice update failed", slog.String("invoice_id", inv.ID), slog.String("error", err.Error()))
			res.Skipped++
			continue
		}
		res.Changed++
	}
	return res, nil
}

// AgingBucketFor maps days past due to a bucket.
func AgingBucketFor(daysOverdue int) models.AgingBucket {
	switch {
	case daysOverdue <= 0:
		return models.AgingCurrent
	case daysOverdue <= 30:
		return models.Aging1To30
	case daysOverdue <= 60:
		return models.Aging31To60
	case daysOverdue <= 90:
		return models.Aging61To90
	default:
		return models.Aging90Plus
	}
}

// reportSkipped logs every undecodable row and returns how many belong to owned,
// the table the calling pass writes.
func (n *Normalizer) reportSkipped(owned string, skipped []store.SkippedRow) int {
	count := 0
	for _, s := range skipped {
		n.logger.Warn("normalize: skipping undecodable row",
			slog.String("table", s.Table),
			slog.Int("row", s.Index),
			slog.String("error", s.Err.Error()))
		if s.Table == owned {
			count++
		}
	}
	return count
}

func sameRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
