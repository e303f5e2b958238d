// Package gates turns invariant and coverage checks into a named result set that
// downstream computation must respect. It never mutates data.
package gates

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/opscore/internal/checksum"
	"github.com/starford/opscore/internal/store"
)

// Gate names.
const (
	DataIntegrity             = "data_integrity"
	ProjectBrandRequired      = "project_brand_required"
	ProjectBrandConsistency   = "project_brand_consistency"
	ProjectClientPopulated    = "project_client_populated"
	InternalProjectClientNull = "internal_project_client_null"
	CapacityBaseline          = "capacity_baseline"
	FinanceARClean            = "finance_ar_clean"
	ClientCoverage            = "client_coverage"
	CommitmentReady           = "commitment_ready"
	FinanceARCoverage         = "finance_ar_coverage"
)

// Kind distinguishes boolean gates from percentage gates.
type Kind string

const (
	KindBoolean    Kind = "boolean"
	KindPercentage Kind = "percentage"
)

// Check is one counted sub-condition of a boolean gate.
type Check struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Violations  int    `json:"violations"`
}

// Gate is one measurement.
type Gate struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Passed   bool   `json:"passed"`
	Blocking bool   `json:"blocking"`

	// Boolean gates.
	Violations int     `json:"violations,omitempty"`
	Checks     []Check `json:"checks,omitempty"`

	// Percentage gates.
	Numerator   int     `json:"numerator,omitempty"`
	Denominator int     `json:"denominator,omitempty"`
	Percent     float64 `json:"percent,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`

	Reason string `json:"reason"`
}

// Results is a snapshot of every gate. Re-evaluate each cycle rather than caching it.
type Results struct {
	Gates       []Gate    `json:"gates"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Get returns the named gate.
func (r *Results) Get(name string) (Gate, bool) {
	for _, g := range r.Gates {
		if g.Name == name {
			return g, true
		}
	}
	return Gate{}, false
}

// Passed reports whether the named gate passed. Unknown gates do not pass.
func (r *Results) Passed(name string) bool {
	g, ok := r.Get(name)
	return ok && g.Passed
}

// DataIntegrity reports the hard-stop gate.
func (r *Results) DataIntegrity() bool {
	return r.Passed(DataIntegrity)
}

// Failing returns gates that did not pass, in evaluation order.
func (r *Results) Failing() []Gate {
	var out []Gate
	for _, g := range r.Gates {
		if !g.Passed {
			out = append(out, g)
		}
	}
	return out
}

// Map flattens the results to name → bool (boolean gates) or name → percent (percentage gates).
func (r *Results) Map() map[string]any {
	out := make(map[string]any, len(r.Gates))
	for _, g := range r.Gates {
		if g.Kind == KindPercentage {
			out[g.Name] = g.Percent
		} else {
			out[g.Name] = g.Passed
		}
	}
	return out
}

// Digest returns a stable hash of the gate measurements, excluding the evaluation time.
func (r *Results) Digest() (string, error) {
	return checksum.JSON(r.Gates)
}

type booleanGate struct {
	name   string
	reason string
	query  string
}

type percentageGate struct {
	name        string
	reason      string
	numerator   string
	denominator string
	threshold   float64
}

var booleanGates = []booleanGate{
	{
		name:   ProjectBrandRequired,
		reason: "non-internal projects without a brand",
		query:  `SELECT COUNT(*) FROM projects WHERE is_internal = 0 AND brand_id IS NULL`,
	},
	{
		name:   ProjectBrandConsistency,
		reason: "non-internal projects whose client differs from their brand's client",
		query: `SELECT COUNT(*) FROM projects p JOIN brands b ON b.id = p.brand_id
			WHERE p.is_internal = 0 AND p.client_id IS NOT b.client_id`,
	},
	{
		name:   ProjectClientPopulated,
		reason: "branded non-internal projects without a client",
		query:  `SELECT COUNT(*) FROM projects WHERE is_internal = 0 AND brand_id IS NOT NULL AND client_id IS NULL`,
	},
	{
		name:   InternalProjectClientNull,
		reason: "internal projects carrying a client",
		query:  `SELECT COUNT(*) FROM projects WHERE is_internal = 1 AND client_id IS NOT NULL`,
	},
	{
		name:   CapacityBaseline,
		reason: "capacity lanes without positive weekly hours",
		query:  `SELECT COUNT(*) FROM capacity_lanes WHERE weekly_hours IS NULL OR weekly_hours <= 0`,
	},
	{
		name:   FinanceARClean,
		reason: "receivable invoices missing client or due date",
		query: `SELECT COUNT(*) FROM invoices
			WHERE status IN ('sent', 'overdue') AND paid_date IS NULL
			  AND (client_id IS NULL OR due_date IS NULL)`,
	},
}

var percentageGates = []percentageGate{
	{
		name:        ClientCoverage,
		reason:      "client-linked tasks among tasks where a client applies",
		numerator:   `SELECT COUNT(*) FROM tasks WHERE client_link_status = 'linked'`,
		denominator: `SELECT COUNT(*) FROM tasks WHERE client_link_status != 'n/a'`,
		threshold:   80,
	},
	{
		name:        CommitmentReady,
		reason:      "communications with a body of at least 50 characters",
		numerator:   `SELECT COUNT(*) FROM communications WHERE length(body_text) >= 50`,
		denominator: `SELECT COUNT(*) FROM communications`,
		threshold:   50,
	},
	{
		name:   FinanceARCoverage,
		reason: "valid receivables among receivable-status invoices",
		numerator: `SELECT COUNT(*) FROM invoices
			WHERE status IN ('sent', 'overdue') AND paid_date IS NULL
			  AND due_date IS NOT NULL AND client_id IS NOT NULL`,
		denominator: `SELECT COUNT(*) FROM invoices
			WHERE status IN ('sent', 'overdue') AND paid_date IS NULL`,
		threshold: 95,
	},
}

// Evaluator runs the gate queries against the store.
type Evaluator struct {
	db     *store.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewEvaluator creates an Evaluator over db.
func NewEvaluator(db *store.DB, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{db: db, logger: logger, now: time.Now}
}

// Evaluate measures every gate. data_integrity is always first.
func (e *Evaluator) Evaluate(ctx context.Context) (*Results, error) {
	res := &Results{EvaluatedAt: e.now().UTC()}

	integrity, err := e.dataIntegrity(ctx)
	if err != nil {
		return nil, err
	}
	res.Gates = append(res.Gates, integrity)

	for _, bg := range booleanGates {
		n, err := e.db.Count(ctx, bg.query)
		if err != nil {
			return nil, fmt.Errorf("gates: %s: %w", bg.name, err)
		}
		res.Gates = append(res.Gates, Gate{
			Name:       bg.name,
			Kind:       KindBoolean,
			Passed:     n == 0,
			Violations: n,
			Reason:     fmt.Sprintf("%d %s", n, bg.reason),
		})
	}

	for _, pg := range percentageGates {
		num, err := e.db.Count(ctx, pg.numerator)
		if err != nil {
			return nil, fmt.Errorf("gates: %s numerator: %w", pg.name, err)
		}
		den, err := e.db.Count(ctx, pg.denominator)
		if err != nil {
			return nil, fmt.Errorf("gates: %s denominator: %w", pg.name, err)
		}
		pct := Percent(num, den)
		res.Gates = append(res.Gates, Gate{
			Name:        pg.name,
			Kind:        KindPercentage,
			Passed:      pct >= pg.threshold,
			Numerator:   num,
			Denominator: den,
			Percent:     pct,
			Threshold:   pg.threshold,
			Reason:      fmt.Sprintf("%d/%d %s (%.1f%%, needs %.0f%%)", num, den, pg.reason, pct, pg.threshold),
		})
	}

	for _, g := range res.Failing() {
		e.logger.Warn("gates: failing", slog.String("gate", g.Name), slog.String("reason", g.Reason))
	}
	return res, nil
}

func (e *Evaluator) dataIntegrity(ctx context.Context) (Gate, error) {
	g := Gate{Name: DataIntegrity, Kind: KindBoolean, Blocking: true}
	for _, inv := range Invariants {
		n, err := e.db.Count(ctx, inv.Query)
		if err != nil {
			return g, fmt.Errorf("gates: invariant %s: %w", inv.Name, err)
		}
		g.Checks = append(g.Checks, Check{Name: inv.Name, Description: inv.Description, Violations: n})
		g.Violations += n
	}
	g.Passed = g.Violations == 0
	if g.Passed {
		g.Reason = "all task linkage invariants hold"
	} else {
		g.Reason = fmt.Sprintf("%d task linkage invariant violations", g.Violations)
	}
	return g, nil
}

// Percent returns num/den as a percentage. An empty denominator is fully covered.
func Percent(num, den int) float64 {
	if den == 0 {
		return 100
	}
	return float64(num) / float64(den) * 100
}
