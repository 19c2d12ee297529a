// Package testkit builds seeded synthetic observation tables and in-memory
// ports for tests and local runs.
package testkit

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/audit"
	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

// GeneratorConfig configures the examiner table generator
type GeneratorConfig struct {
	Period   string   `json:"period"`
	Entities int      `json:"entities"`
	MinN     int      `json:"min_n"`
	MaxN     int      `json:"max_n"`
	BaseRate float64  `json:"base_rate"`
	HotCount int      `json:"hot_count"` // entities drawing NC at HotRate
	HotRate  float64  `json:"hot_rate"`
	Regions  []string `json:"regions"`
	Seed     uint64   `json:"seed"`
}

// DefaultGeneratorConfig returns a 40-examiner period with four examiners
// well above a 10% baseline.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Period:   "2024-Q1",
		Entities: 40,
		MinN:     50,
		MaxN:     400,
		BaseRate: 0.10,
		HotCount: 4,
		HotRate:  0.30,
		Regions:  []string{"N", "NE", "CO", "SE", "S"},
		Seed:     42,
	}
}

// Generator produces observation tables with a known set of hot entities
type Generator struct {
	config GeneratorConfig
}

// NewGenerator validates config and creates a generator
func NewGenerator(config GeneratorConfig) (*Generator, error) {
	switch {
	case config.Entities <= 0:
		return nil, errors.InvalidParameter("entities %d must be > 0", config.Entities)
	case config.MinN < 1 || config.MaxN < config.MinN:
		return nil, errors.InvalidParameter("volume range [%d, %d] is invalid", config.MinN, config.MaxN)
	case config.HotCount < 0 || config.HotCount > config.Entities:
		return nil, errors.InvalidParameter("hot count %d outside [0, %d]", config.HotCount, config.Entities)
	case config.BaseRate < 0 || config.BaseRate > 1 || config.HotRate < 0 || config.HotRate > 1:
		return nil, errors.InvalidParameter("rates must lie in [0, 1]")
	}
	return &Generator{config: config}, nil
}

// Generate draws one table. NC is Binomial(N, rate) and the score is the
// observed rate NC/N. The first HotCount entities are the hot ones; their
// ids are returned alongside the table.
func (g *Generator) Generate() (*audit.ObservationTable, []core.EntityID) {
	c := g.config
	r := rand.New(rand.NewPCG(c.Seed, 0x5eed))

	rows := make([]audit.Observation, c.Entities)
	hot := make([]core.EntityID, 0, c.HotCount)
	for i := range rows {
		id := core.EntityID(fmt.Sprintf("ex%03d", i+1))
		n := c.MinN + r.IntN(c.MaxN-c.MinN+1)

		rate := c.BaseRate
		if i < c.HotCount {
			rate = c.HotRate
			hot = append(hot, id)
		}
		nc := int(distuv.Binomial{N: float64(n), P: rate, Src: r}.Rand())
		score := float64(nc) / float64(n)

		row := audit.Observation{EntityID: id, N: n, NC: nc, Score: &score}
		if len(c.Regions) > 0 {
			row.Strata = map[string]string{"region": c.Regions[i%len(c.Regions)]}
		}
		rows[i] = row
	}
	return audit.NewObservationTable(c.Period, rows), hot
}
