package ranking

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/starford/opscore/internal/checksum"
)

// Candidate is one item a domain wants ranked.
type Candidate struct {
	Domain          string     `json:"domain" yaml:"domain"`
	EntityRef       string     `json:"entity_ref" yaml:"entity_ref"`
	Impact          float64    `json:"impact" yaml:"impact"`
	Urgency         float64    `json:"urgency" yaml:"-"`
	Controllability float64    `json:"controllability" yaml:"controllability"`
	Confidence      Confidence `json:"confidence" yaml:"confidence"`

	// HoursToConsequence is nil when the item has no known deadline.
	HoursToConsequence *float64 `json:"hours_to_consequence,omitempty" yaml:"hours_to_consequence"`

	DependencyBreaker    bool `json:"dependency_breaker,omitempty" yaml:"dependency_breaker"`
	CapacityBlockerToday bool `json:"capacity_blocker_today,omitempty" yaml:"capacity_blocker_today"`
	CriticalPath         bool `json:"critical_path,omitempty" yaml:"critical_path"`
	CompoundingDamage    bool `json:"compounding_damage,omitempty" yaml:"compounding_damage"`
	FinanceSevere        bool `json:"finance_severe,omitempty" yaml:"finance_severe"`
}

// Ranked is a candidate with its position and scores.
type Ranked struct {
	Candidate
	Rank        int     `json:"rank"`
	BaseScore   float64 `json:"base_score"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// Rank filters candidates by horizon eligibility, orders them and keeps at most maxItems.
// maxItems <= 0 keeps every eligible candidate. The input slice is not modified.
//
// Ordering: score descending, then hours to consequence ascending (absent last),
// controllability descending, confidence descending, and finally domain and entity
// reference so that equal candidates always come out in the same order.
func Rank(candidates []Candidate, p Profile, h Horizon, maxItems int) []Ranked {
	out := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if !Eligible(c, h) {
			continue
		}
		out = append(out, Ranked{
			Candidate: c,
			BaseScore: BaseScore(c),
			Score:     ModeWeightedScore(c, p),
		})
	}

	slices.SortStableFunc(out, compareRanked)

	if maxItems > 0 && len(out) > maxItems {
		out = out[:maxItems]
	}
	for i := range out {
		out[i].Rank = i + 1
		out[i].Explanation = explain(out[i], p)
	}
	return out
}

func compareRanked(a, b Ranked) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := compareHours(a.HoursToConsequence, b.HoursToConsequence); c != 0 {
		return c
	}
	if c := cmp.Compare(Clamp(b.Controllability), Clamp(a.Controllability)); c != 0 {
		return c
	}
	if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Domain, b.Domain); c != 0 {
		return c
	}
	return cmp.Compare(a.EntityRef, b.EntityRef)
}

// compareHours orders known deadlines soonest first and unknown ones last.
func compareHours(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return cmp.Compare(*a, *b)
	}
}

func explain(r Ranked, p Profile) string {
	return fmt.Sprintf("base %.3f (impact %.2f, urgency %.2f, control %.2f, confidence %s) x %s weight %.2f for %s = %.3f",
		r.BaseScore, Clamp(r.Impact), Clamp(r.Urgency), Clamp(r.Controllability), r.Confidence,
		p.Name, p.Weight(r.Domain), r.Domain, r.Score)
}

// Digest returns a stable hash of a ranked list, for comparing snapshots.
func Digest(ranked []Ranked) (string, error) {
	return checksum.JSON(ranked)
}
