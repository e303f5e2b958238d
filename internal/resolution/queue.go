// Package resolution maintains the deduplicated backlog of linkage defects that
// operators work through.
package resolution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/opscore/internal/apperr"
	"github.com/starford/opscore/internal/models"
	"github.com/starford/opscore/internal/normalize"
	"github.com/starford/opscore/internal/store"
)

// DefaultRetention is how long resolved items are kept before Purge removes them.
const DefaultRetention = 30 * 24 * time.Hour

// PopulateResult reports items created per issue type.
type PopulateResult struct {
	Created  map[models.IssueType]int `json:"created"`
	Detected int                      `json:"detected"`
}

// Total returns the number of items created.
func (r PopulateResult) Total() int {
	n := 0
	for _, c := range r.Created {
		n += c
	}
	return n
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for created_at, resolved_at and due-date escalation.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithRules replaces the detector set.
func WithRules(rules []Rule) Option {
	return func(q *Queue) {
		q.rules = rules
	}
}

// Queue is the resolution queue over one store. Construct one per cycle.
type Queue struct {
	db     *store.DB
	logger *slog.Logger
	now    func() time.Time
	rules  []Rule
}

// NewQueue creates a Queue over db.
func NewQueue(db *store.DB, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{db: db, logger: logger, now: time.Now, rules: Rules}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Populate runs every detector and inserts an item for each defect that has no open
// item yet. A defect whose earlier item was resolved gets a fresh item.
func (q *Queue) Populate(ctx context.Context) (PopulateResult, error) {
	res := PopulateResult{Created: make(map[models.IssueType]int)}
	now := q.now().UTC()

	for _, r := range q.rules {
		defects, skipped, err := q.db.Defects(ctx, r.Query)
		if err != nil {
			return res, fmt.Errorf("resolution: detector %s: %w", r.Issue, err)
		}
		for _, s := range skipped {
			q.logger.Warn("resolution: skipping undecodable defect",
				slog.String("issue", string(r.Issue)),
				slog.Int("row", s.Index),
				slog.String("error", s.Err.Error()))
		}
		var reasons map[string]string
		if r.Issue == models.IssueChainBroken && len(defects) > 0 {
			if reasons, err = q.chainReasons(ctx); err != nil {
				return res, err
			}
		}

		for _, d := range defects {
			res.Detected++
			text := d.Detail
			if why, ok := reasons[d.EntityID]; ok {
				text += ": " + why
			}
			created, err := q.db.InsertOpenItem(ctx, models.ResolutionItem{
				EntityType: r.Entity,
				EntityID:   d.EntityID,
				IssueType:  r.Issue,
				Priority:   r.Priority(d, now),
				Context:    text,
				CreatedAt:  now,
			})
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				q.logger.Warn("resolution: insert failed",
					slog.String("issue", string(r.Issue)),
					slog.String("entity_id", d.EntityID),
					slog.String("error", err.Error()))
				continue
			}
			if created {
				res.Created[r.Issue]++
			}
		}
	}

	q.logger.Info("resolution: populated", slog.Int("detected", res.Detected), slog.Int("created", res.Total()))
	return res, nil
}

// chainReasons explains each broken task chain with the decision rule that classified it.
func (q *Queue) chainReasons(ctx context.Context) (map[string]string, error) {
	g, err := q.db.LoadLinkGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolution: load link graph: %w", err)
	}
	out := make(map[string]string, len(g.Tasks))
	for _, t := range g.Tasks {
		out[t.ID] = normalize.ClassifyTask(normalize.ResolveChain(t, g)).Rule.Description
	}
	return out, nil
}

// GetPending returns open items by priority then age. limit <= 0 returns all.
func (q *Queue) GetPending(ctx context.Context, limit int) ([]models.ResolutionItem, error) {
	return q.db.PendingItems(ctx, limit)
}

// GetByPriority returns open items of one priority, oldest first.
func (q *Queue) GetByPriority(ctx context.Context, priority int) ([]models.ResolutionItem, error) {
	if err := validation.Validate(priority, validation.Min(1), validation.Max(3)); err != nil {
		return nil, fmt.Errorf("resolution: priority %d: %v: %w", priority, err, apperr.ErrInvalidArgument)
	}
	return q.db.ItemsByPriority(ctx, priority)
}

// Resolve closes an item and returns its final state. Resolving an already-resolved
// item leaves the original resolution in place.
func (q *Queue) Resolve(ctx context.Context, id int64, actor, action string) (*models.ResolutionItem, error) {
	actor = strings.TrimSpace(actor)
	if err := validation.Validate(actor, validation.Required); err != nil {
		return nil, fmt.Errorf("resolution: actor %v: %w", err, apperr.ErrInvalidArgument)
	}
	changed, err := q.db.ResolveItem(ctx, id, actor, action, q.now())
	if err != nil {
		return nil, err
	}
	if changed {
		q.logger.Info("resolution: resolved", slog.Int64("id", id), slog.String("actor", actor))
	}
	return q.db.Item(ctx, id)
}

// Summary counts open items by (priority, issue type).
func (q *Queue) Summary(ctx context.Context) ([]store.SummaryRow, error) {
	return q.db.OpenSummary(ctx)
}

// Purge deletes items resolved more than retention ago. retention <= 0 uses DefaultRetention.
func (q *Queue) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	n, err := q.db.PurgeResolved(ctx, q.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Info("resolution: purged", slog.Int64("items", n))
	}
	return n, nil
}
