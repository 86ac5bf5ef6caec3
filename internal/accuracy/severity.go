package accuracy

import (
	"errors"
	"fmt"
)

// Severity classifies the quality of a move.
type Severity int

const (
	Excellent Severity = iota
	Good
	Inaccuracy
	Mistake
	Blunder
)

func (s Severity) String() string {
	switch s {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	case Inaccuracy:
		return "inaccuracy"
	case Mistake:
		return "mistake"
	case Blunder:
		return "blunder"
	default:
		return "unknown"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity parses a severity name.
func ParseSeverity(name string) (Severity, error) {
	for s := Excellent; s <= Blunder; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return Excellent, fmt.Errorf("accuracy: unknown severity %q", name)
}

// ErrInvalidThresholds indicates thresholds that are not strictly
// increasing and positive.
var ErrInvalidThresholds = errors.New("accuracy: thresholds must be positive and strictly increasing")

// Thresholds are the minimum centipawn losses for each severity above
// excellent. A loss below Good is excellent.
type Thresholds struct {
	Good       float64 `yaml:"good" json:"good"`
	Inaccuracy float64 `yaml:"inaccuracy" json:"inaccuracy"`
	Mistake    float64 `yaml:"mistake" json:"mistake"`
	Blunder    float64 `yaml:"blunder" json:"blunder"`
}

// DefaultThresholds returns the default classification boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Good:       10,
		Inaccuracy: 50,
		Mistake:    100,
		Blunder:    200,
	}
}

// Validate checks the thresholds are usable.
func (t Thresholds) Validate() error {
	if t.Good <= 0 || t.Good >= t.Inaccuracy || t.Inaccuracy >= t.Mistake || t.Mistake >= t.Blunder {
		return fmt.Errorf("%w: %+v", ErrInvalidThresholds, t)
	}
	return nil
}

// Classify maps a centipawn loss to a severity. Every loss maps to exactly
// one severity; negative losses are excellent.
func (t Thresholds) Classify(cpLoss float64) Severity {
	switch {
	case cpLoss >= t.Blunder:
		return Blunder
	case cpLoss >= t.Mistake:
		return Mistake
	case cpLoss >= t.Inaccuracy:
		return Inaccuracy
	case cpLoss >= t.Good:
		return Good
	default:
		return Excellent
	}
}
