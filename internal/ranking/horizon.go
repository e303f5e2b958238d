package ranking

import (
	"fmt"

	"github.com/starford/opscore/internal/apperr"
)

// Horizon is the time window a ranking is produced for.
type Horizon string

const (
	HorizonNow      Horizon = "now"
	HorizonToday    Horizon = "today"
	HorizonThisWeek Horizon = "this_week"
)

// Eligibility thresholds in hours.
const (
	nowMaxHours          = 4
	nowCriticalPathHours = 12
	todayMaxHours        = 24
	todayHighImpactHours = 48
	weekMaxHours         = 168
	highImpact           = 0.5
)

// ParseHorizon validates a horizon name.
func ParseHorizon(s string) (Horizon, error) {
	switch h := Horizon(s); h {
	case HorizonNow, HorizonToday, HorizonThisWeek:
		return h, nil
	default:
		return "", fmt.Errorf("ranking: unknown horizon %q: %w", s, apperr.ErrInvalidArgument)
	}
}

// Eligible reports whether c may be ranked for h. Wider horizons admit everything a
// narrower one does. An unknown horizon admits nothing.
func Eligible(c Candidate, h Horizon) bool {
	switch h {
	case HorizonNow:
		return eligibleNow(c)
	case HorizonToday:
		return eligibleToday(c)
	case HorizonThisWeek:
		return eligibleThisWeek(c)
	default:
		return false
	}
}

func within(c Candidate, hours float64) bool {
	return c.HoursToConsequence != nil && *c.HoursToConsequence <= hours
}

func eligibleNow(c Candidate) bool {
	return within(c, nowMaxHours) ||
		c.DependencyBreaker ||
		c.CapacityBlockerToday ||
		(c.CriticalPath && within(c, nowCriticalPathHours))
}

func eligibleToday(c Candidate) bool {
	return within(c, todayMaxHours) ||
		eligibleNow(c) ||
		c.CriticalPath ||
		c.CompoundingDamage ||
		c.FinanceSevere ||
		(c.Impact >= highImpact && within(c, todayHighImpactHours))
}

func eligibleThisWeek(c Candidate) bool {
	return within(c, weekMaxHours) ||
		eligibleToday(c) ||
		c.Impact >= highImpact
}
