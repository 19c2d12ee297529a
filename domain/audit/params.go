package audit

import (
	"math"

	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

// Baseline is the national non-conformance rate p_BR for a period.
type Baseline float64

// Rate returns the baseline as a float64
func (b Baseline) Rate() float64 {
	return float64(b)
}

// Validate requires p_BR in [0, 1].
func (b Baseline) Validate() error {
	p := float64(b)
	if math.IsNaN(p) || p < 0 || p > 1 {
		return errors.InvalidParameter("baseline rate %v outside [0, 1]", p)
	}
	return nil
}

// ImpactParameters are the scalar knobs of the excess-impact computation.
type ImpactParameters struct {
	// Alpha converts excess non-conformances into queue-capacity units.
	Alpha float64 `json:"alpha"`
	// MinN excludes entities with fewer trials from every sum.
	MinN int `json:"min_n"`
	// CutN is the minimum volume for an entity to be selectable.
	CutN int `json:"cut_n"`
}

// Validate enforces alpha >= 0, MinN >= 0 and CutN >= 0.
func (p ImpactParameters) Validate() error {
	if math.IsNaN(p.Alpha) || math.IsInf(p.Alpha, 0) || p.Alpha < 0 {
		return errors.InvalidParameter("alpha %v must be a finite value >= 0", p.Alpha)
	}
	if p.MinN < 0 {
		return errors.InvalidParameter("min_n %d must be >= 0", p.MinN)
	}
	if p.CutN < 0 {
		return errors.InvalidParameter("cut_n %d must be >= 0", p.CutN)
	}
	return nil
}

// WithAlpha returns a copy with a different alpha
func (p ImpactParameters) WithAlpha(alpha float64) ImpactParameters {
	p.Alpha = alpha
	return p
}
