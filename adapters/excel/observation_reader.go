package excel

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/ports"
)

var _ ports.ObservationSource = (*ObservationReader)(nil)

// ObservationReader loads an observation table from an xlsx or csv export.
type ObservationReader struct {
	reader   *DataReader
	mapping  ColumnMapping
	baseline *float64
}

// NewObservationReader creates a reader for filePath. A nil baseline makes
// LoadPeriod use the pooled NC/N rate of the loaded rows.
func NewObservationReader(filePath, sheet string, mapping ColumnMapping, baseline *float64) *ObservationReader {
	return &ObservationReader{
		reader:   NewDataReader(filePath, sheet),
		mapping:  mapping,
		baseline: baseline,
	}
}

// LoadPeriod reads the file and keeps the rows of period. When the file
// has no period column, or period is empty, every row is kept.
func (o *ObservationReader) LoadPeriod(ctx context.Context, period string) (*audit.ObservationTable, audit.Baseline, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	data, err := o.reader.ReadData()
	if err != nil {
		return nil, 0, errors.WithCode(errors.CodeInvalidInput, err)
	}

	table, err := o.ToTable(data, period)
	if err != nil {
		return nil, 0, err
	}

	baseline := audit.Baseline(table.PooledRate())
	if o.baseline != nil {
		baseline = audit.Baseline(*o.baseline)
	}
	if err := baseline.Validate(); err != nil {
		return nil, 0, err
	}

	log.Printf("[ObservationReader] Loaded %d observations for period %q (p_BR=%.4f)", table.Len(), period, baseline.Rate())
	return table, baseline, nil
}

// ToTable maps spreadsheet rows to observations
func (o *ObservationReader) ToTable(data *ExcelData, period string) (*audit.ObservationTable, error) {
	entityCol := resolve(data.Headers, o.mapping.Entity)
	if entityCol == "" {
		detected, err := o.reader.DetectEntityColumn(data)
		if err != nil {
			return nil, errors.WithCode(errors.CodeInvalidInput, err)
		}
		entityCol = detected
	}
	nCol := resolve(data.Headers, o.mapping.N)
	ncCol := resolve(data.Headers, o.mapping.NC)
	if nCol == "" || ncCol == "" {
		return nil, errors.InvalidInput(fmt.Sprintf("columns %q and %q are required", o.mapping.N, o.mapping.NC))
	}
	scoreCol := resolve(data.Headers, o.mapping.Score)
	periodCol := resolve(data.Headers, o.mapping.Period)
	strataCols := o.strataColumns(data.Headers, entityCol)

	rows := make([]audit.Observation, 0, len(data.Rows))
	for i, raw := range data.Rows {
		line := i + 2
		if period != "" && periodCol != "" && raw[periodCol] != period {
			continue
		}

		id, err := core.ParseEntityID(raw[entityCol])
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("row %d: %v", line, err))
		}
		n, err := parseCount(raw[nCol])
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("row %d: column %s: %v", line, nCol, err))
		}
		nc, err := parseCount(raw[ncCol])
		if err != nil {
			return nil, errors.InvalidInput(fmt.Sprintf("row %d: column %s: %v", line, ncCol, err))
		}

		obs := audit.Observation{EntityID: id, N: n, NC: nc}
		if scoreCol != "" && raw[scoreCol] != "" {
			score, err := strconv.ParseFloat(strings.ReplaceAll(raw[scoreCol], ",", "."), 64)
			if err != nil {
				return nil, errors.InvalidInput(fmt.Sprintf("row %d: score %q is not a number", line, raw[scoreCol]))
			}
			obs.Score = &score
		}
		for _, col := range strataCols {
			if v := raw[col]; v != "" {
				if obs.Strata == nil {
					obs.Strata = make(map[string]string, len(strataCols))
				}
				obs.Strata[strings.ToLower(col)] = v
			}
		}
		rows = append(rows, obs)
	}

	table := audit.NewObservationTable(period, rows)
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

func (o *ObservationReader) strataColumns(headers []string, entityCol string) []string {
	if len(o.mapping.Strata) > 0 {
		var cols []string
		for _, name := range o.mapping.Strata {
			if h := resolve(headers, name); h != "" {
				cols = append(cols, h)
			}
		}
		return cols
	}
	var cols []string
	for _, h := range headers {
		if h != "" && h != entityCol && !o.mapping.isMapped(h) {
			cols = append(cols, h)
		}
	}
	return cols
}

// parseCount accepts integers, including the "12.0" form spreadsheets emit.
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%q is not an integer count", s)
	}
	return int(f), nil
}
