// Package excess converts per-examiner counts and a baseline rate into excess
// non-conformances (E) and queue impact (IV).
package excess

import (
	"math"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
)

// ceilTolerance keeps products such as 0.8*30 from rounding up to 25.
const ceilTolerance = 1e-9

// Record is the excess computation for one row of the table.
type Record struct {
	EntityID core.EntityID
	N        int
	NC       int
	Score    *float64
	Strata   map[string]string
	Expected float64
	Excess   int
	Impact   int
	Eligible bool
}

// Impact is the result of one Compute call. Records follow table order.
type Impact struct {
	Records  []Record
	Total    int
	Baseline float64
	Params   audit.ImpactParameters
	Warnings stats.Warnings
}

// Calculator computes excess and impact. It holds no state.
type Calculator struct{}

// NewCalculator creates a new calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute applies E = ceil(max(0, NC - N*p)) and IV = ceil(alpha*E) to every
// row with N > 0 and N >= MinN. Other rows stay in Records with zero values
// and Eligible=false.
func (c *Calculator) Compute(table *audit.ObservationTable, baseline audit.Baseline, params audit.ImpactParameters) (*Impact, error) {
	if err := baseline.Validate(); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	p := baseline.Rate()
	impact := &Impact{
		Records:  make([]Record, 0, table.Len()),
		Baseline: p,
		Params:   params,
	}

	for _, row := range table.Rows {
		rec := Record{
			EntityID: row.EntityID,
			N:        row.N,
			NC:       row.NC,
			Score:    row.Score,
			Strata:   row.Strata,
		}
		switch {
		case row.N == 0:
			impact.Warnings.Add(stats.WarningDegenerateInput)
		case row.N >= params.MinN:
			rec.Eligible = true
			rec.Expected = float64(row.N) * p
			rec.Excess = ExcessOf(row.N, row.NC, p)
			rec.Impact = ImpactOf(rec.Excess, params.Alpha)
			impact.Total += rec.Impact
		}
		impact.Records = append(impact.Records, rec)
	}

	return impact, nil
}

// ExcessOf returns ceil(max(0, nc - n*p)).
func ExcessOf(n, nc int, p float64) int {
	return ceilNonNegative(float64(nc) - float64(n)*p)
}

// ImpactOf returns ceil(alpha*excess).
func ImpactOf(excess int, alpha float64) int {
	return ceilNonNegative(alpha * float64(excess))
}

func ceilNonNegative(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Ceil(v - ceilTolerance))
}

// Eligible returns the eligible records in table order
func (im *Impact) Eligible() []Record {
	out := make([]Record, 0, len(im.Records))
	for _, rec := range im.Records {
		if rec.Eligible {
			out = append(out, rec)
		}
	}
	return out
}

// Lookup returns the record for id
func (im *Impact) Lookup(id core.EntityID) (Record, bool) {
	for _, rec := range im.Records {
		if rec.EntityID == id {
			return rec, true
		}
	}
	return Record{}, false
}

// SelectedImpact sums IV over eligible records in sel.
func (im *Impact) SelectedImpact(sel Selection) int {
	sum := 0
	for _, rec := range im.Records {
		if rec.Eligible && sel.Contains(rec.EntityID) {
			sum += rec.Impact
		}
	}
	return sum
}

// Weight returns IV_selected / IV_total, or 0 when the total is 0.
func (im *Impact) Weight(sel Selection) float64 {
	if im.Total == 0 {
		return 0
	}
	return float64(im.SelectedImpact(sel)) / float64(im.Total)
}

// SelectByCutoff selects eligible records with a score >= cutoff and N >= cutN.
func (im *Impact) SelectByCutoff(cutoff float64, cutN int) Selection {
	sel := NewSelection()
	for _, rec := range im.Records {
		if rec.Eligible && rec.Score != nil && *rec.Score >= cutoff && rec.N >= cutN {
			sel.Add(rec.EntityID)
		}
	}
	return sel
}
