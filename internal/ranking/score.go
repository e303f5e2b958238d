// Package ranking scores and orders candidate items from any domain. Every function
// here is pure: identical input always yields identical output.
package ranking

import (
	"fmt"
	"slices"
	"strings"

	"github.com/starford/opscore/internal/apperr"
)

// Domains known to the shipped weight profiles.
const (
	DomainDelivery = "delivery"
	DomainCash     = "cash"
	DomainComms    = "comms"
	DomainClients  = "clients"
	DomainCapacity = "capacity"
)

// UnknownDomainWeight keeps unclassified items visible without letting them dominate.
const UnknownDomainWeight = 0.1

// Base score weights.
const (
	weightImpact          = 0.30
	weightUrgency         = 0.30
	weightControllability = 0.20
	weightConfidence      = 0.20
)

// Clamp limits v to [0, 1].
func Clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// BaseScore is the profile-independent score of c.
func BaseScore(c Candidate) float64 {
	return weightImpact*Clamp(c.Impact) +
		weightUrgency*Clamp(c.Urgency) +
		weightControllability*Clamp(c.Controllability) +
		weightConfidence*Clamp(c.Confidence.Scalar())
}

// UrgencyFromHours maps hours until (or, when negative, since) a consequence to an
// urgency in [0, 1]: 1.0 at or past due, 0.7 at 12h, 0.5 at 24h, 0.1 at one week,
// then decaying toward zero.
func UrgencyFromHours(h float64) float64 {
	switch {
	case h <= 0:
		return 1.0
	case h <= 12:
		return 1.0 - 0.3*h/12
	case h <= 24:
		return 0.7 - 0.2*(h-12)/12
	case h <= 168:
		return 0.5 - 0.4*(h-24)/144
	default:
		return 0.1 * 168 / h
	}
}

// Profile is a named table of per-domain weights summing to 1.
type Profile struct {
	Name    string
	Weights map[string]float64
}

// Weight returns the profile's weight for domain.
func (p Profile) Weight(domain string) float64 {
	if w, ok := p.Weights[domain]; ok {
		return w
	}
	return UnknownDomainWeight
}

// Shipped profiles.
var (
	Balanced = Profile{Name: "balanced", Weights: map[string]float64{
		DomainDelivery: 0.30,
		DomainCash:     0.25,
		DomainComms:    0.20,
		DomainClients:  0.15,
		DomainCapacity: 0.10,
	}}
	DeliveryFirst = Profile{Name: "delivery_first", Weights: map[string]float64{
		DomainDelivery: 0.45,
		DomainCapacity: 0.20,
		DomainComms:    0.15,
		DomainClients:  0.10,
		DomainCash:     0.10,
	}}
	CashFirst = Profile{Name: "cash_first", Weights: map[string]float64{
		DomainCash:     0.45,
		DomainClients:  0.20,
		DomainDelivery: 0.15,
		DomainComms:    0.10,
		DomainCapacity: 0.10,
	}}
)

// Profiles lists the shipped profiles.
var Profiles = []Profile{Balanced, DeliveryFirst, CashFirst}

// LookupProfile returns the shipped profile with the given name.
func LookupProfile(name string) (Profile, error) {
	for _, p := range Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	names := make([]string, 0, len(Profiles))
	for _, p := range Profiles {
		names = append(names, p.Name)
	}
	slices.Sort(names)
	return Profile{}, fmt.Errorf("ranking: unknown profile %q (want one of %s): %w",
		name, strings.Join(names, ", "), apperr.ErrInvalidArgument)
}

// ModeWeightedScore is BaseScore scaled by the profile's weight for c's domain.
func ModeWeightedScore(c Candidate, p Profile) float64 {
	return BaseScore(c) * p.Weight(c.Domain)
}
