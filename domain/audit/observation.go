// Package audit holds the input data model of an excess-impact audit: the
// per-examiner observation table and the scalar parameters applied to it.
package audit

import (
	"fmt"
	"sort"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

// Observation is one examiner's counts for a reporting period.
type Observation struct {
	EntityID core.EntityID     `json:"entity_id"`
	N        int               `json:"n"`
	NC       int               `json:"nc"`
	Score    *float64          `json:"score,omitempty"`
	Strata   map[string]string `json:"strata,omitempty"`
}

// Conforming returns N - NC.
func (o Observation) Conforming() int {
	return o.N - o.NC
}

// HasScore reports whether the ranking score is present
func (o Observation) HasScore() bool {
	return o.Score != nil
}

// Stratum returns the label for key, or "" when absent.
func (o Observation) Stratum(key string) string {
	if o.Strata == nil {
		return ""
	}
	return o.Strata[key]
}

// ObservationTable is built once per reporting period and treated as
// immutable by every engine.
type ObservationTable struct {
	Period string        `json:"period,omitempty"`
	Rows   []Observation `json:"rows"`
}

// NewObservationTable creates a table for a period
func NewObservationTable(period string, rows []Observation) *ObservationTable {
	return &ObservationTable{Period: period, Rows: rows}
}

// Len returns the number of rows
func (t *ObservationTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Validate checks the row invariants 0 <= NC <= N and unique, non-empty ids.
func (t *ObservationTable) Validate() error {
	if t == nil {
		return errors.InvalidInput("observation table is nil")
	}
	seen := make(map[core.EntityID]struct{}, len(t.Rows))
	for i, row := range t.Rows {
		if row.EntityID == "" {
			return errors.InvalidInput(fmt.Sprintf("row %d: entity id is empty", i))
		}
		if _, dup := seen[row.EntityID]; dup {
			return errors.InvalidInput(fmt.Sprintf("row %d: duplicate entity id %s", i, row.EntityID))
		}
		seen[row.EntityID] = struct{}{}
		if row.N < 0 {
			return errors.InvalidInput(fmt.Sprintf("entity %s: N=%d is negative", row.EntityID, row.N))
		}
		if row.NC < 0 || row.NC > row.N {
			return errors.InvalidInput(fmt.Sprintf("entity %s: NC=%d outside [0, N=%d]", row.EntityID, row.NC, row.N))
		}
	}
	return nil
}

// Totals sums N and NC over rows with N > 0 and N >= minN.
func (t *ObservationTable) Totals(minN int) (n, nc int) {
	for _, row := range t.Rows {
		if row.N == 0 || row.N < minN {
			continue
		}
		n += row.N
		nc += row.NC
	}
	return n, nc
}

// PooledRate returns total NC / total N over all rows, or 0 for an empty table.
func (t *ObservationTable) PooledRate() float64 {
	n, nc := t.Totals(0)
	if n == 0 {
		return 0
	}
	return float64(nc) / float64(n)
}

// Resample returns a new table holding the rows at idx, in order. Repeated
// indexes produce repeated rows; the receiver is not modified.
func (t *ObservationTable) Resample(idx []int) *ObservationTable {
	rows := make([]Observation, len(idx))
	for i, j := range idx {
		rows[i] = t.Rows[j]
	}
	return &ObservationTable{Period: t.Period, Rows: rows}
}

// StratumKeys lists the stratum field names present on any row, in
// first-seen order. Keys of a single row are taken alphabetically.
func (t *ObservationTable) StratumKeys() []string {
	var keys []string
	seen := map[string]struct{}{}
	for _, row := range t.Rows {
		rowKeys := make([]string, 0, len(row.Strata))
		for k := range row.Strata {
			rowKeys = append(rowKeys, k)
		}
		sort.Strings(rowKeys)
		for _, k := range rowKeys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys
}
