package excel

import "strings"

// ColumnMapping names the spreadsheet columns holding each observation field.
// Headers are matched case-insensitively.
type ColumnMapping struct {
	Entity string `json:"entity"`
	N      string `json:"n"`
	NC     string `json:"nc"`
	Score  string `json:"score"`
	Period string `json:"period"`
	// Strata lists the columns copied into Observation.Strata. Empty means
	// every column not mapped above.
	Strata []string `json:"strata,omitempty"`
}

// DefaultColumnMapping returns the column names written by the export job
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		Entity: "entity_id",
		N:      "n",
		NC:     "nc",
		Score:  "score",
		Period: "period",
	}
}

func (m ColumnMapping) isMapped(header string) bool {
	for _, col := range []string{m.Entity, m.N, m.NC, m.Score, m.Period} {
		if col != "" && strings.EqualFold(col, header) {
			return true
		}
	}
	return false
}

// resolve returns the header of data matching name, or "".
func resolve(headers []string, name string) string {
	if name == "" {
		return ""
	}
	for _, h := range headers {
		if strings.EqualFold(h, name) {
			return h
		}
	}
	return ""
}
