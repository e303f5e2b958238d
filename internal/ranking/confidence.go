package ranking

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Confidence is how much the producing domain trusts a candidate. Higher values rank first.
type Confidence uint8

const (
	ConfidenceUnknown Confidence = iota
	ConfidenceLow
	ConfidenceMed
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "LOW"
	case ConfidenceMed:
		return "MED"
	case ConfidenceHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Scalar maps the confidence to its base-score term.
func (c Confidence) Scalar() float64 {
	switch c {
	case ConfidenceHigh:
		return 1.0
	case ConfidenceMed:
		return 0.6
	case ConfidenceLow:
		return 0.3
	default:
		return 0
	}
}

// ParseConfidence accepts HIGH, MED (or MEDIUM) and LOW in any case.
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return ConfidenceHigh, nil
	case "MED", "MEDIUM":
		return ConfidenceMed, nil
	case "LOW":
		return ConfidenceLow, nil
	default:
		return ConfidenceUnknown, fmt.Errorf("ranking: unknown confidence %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Confidence) UnmarshalYAML(n *yaml.Node) error {
	v, err := ParseConfidence(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*c = v
	return nil
}
