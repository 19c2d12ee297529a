package montecarlo

import (
	"context"
	"math/rand/v2"
	"sort"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"
)

const stagePermutation = "permutation"

// PermutationConfig controls one permutation test.
type PermutationConfig struct {
	Replicas int
	Seed     int64
	// StratumKey, when set, makes every replica reproduce the selection's
	// per-stratum counts.
	StratumKey string
}

// PermutationTester compares the observed selection weight with weights of
// random selections of the same size.
type PermutationTester struct {
	runner *Runner
}

// NewPermutationTester creates a permutation tester
func NewPermutationTester(runner *Runner) *PermutationTester {
	return &PermutationTester{runner: runner}
}

// Test returns p = (1 + #{replica IV >= observed IV}) / (R + 1). Replica and
// observed impacts are compared as integers so exact ties count.
func (pt *PermutationTester) Test(ctx context.Context, impact *excess.Impact, sel excess.Selection, cfg PermutationConfig) (stats.PermutationResult, error) {
	if cfg.Replicas <= 0 {
		return stats.PermutationResult{}, errors.InvalidParameter("permutation replicas %d must be > 0", cfg.Replicas)
	}

	pool := impact.Eligible()
	plan := newDrawPlan(pool, sel, cfg.StratumKey)
	observed := impact.SelectedImpact(sel)

	sums, err := pt.runner.Map(ctx, stagePermutation, cfg.Seed, cfg.Replicas, func(r *rand.Rand, _ int) (float64, error) {
		return float64(plan.draw(r, pool)), nil
	})
	if err != nil {
		return stats.PermutationResult{}, err
	}

	atLeast := 0
	for _, s := range sums {
		if int(s) >= observed {
			atLeast++
		}
	}

	res := stats.PermutationResult{
		ObservedWeight: impact.Weight(sel),
		PValue:         float64(1+atLeast) / float64(cfg.Replicas+1),
		Replicas:       cfg.Replicas,
		Stratified:     cfg.StratumKey != "",
	}
	res.NullSamples = make([]float64, len(sums))
	if impact.Total > 0 {
		for i, s := range sums {
			res.NullSamples[i] = s / float64(impact.Total)
		}
	}
	return res, nil
}

// drawPlan describes how many entities each replica takes from each group of
// the eligible pool.
type drawPlan struct {
	groups [][]int
	quotas []int
	size   int
}

func newDrawPlan(pool []excess.Record, sel excess.Selection, stratumKey string) drawPlan {
	index := map[string]int{}
	var labels []string
	members := map[string][]int{}
	selected := map[string]int{}
	size := 0

	for i, rec := range pool {
		label := ""
		if stratumKey != "" {
			label = rec.Strata[stratumKey]
		}
		if _, ok := index[label]; !ok {
			index[label] = len(labels)
			labels = append(labels, label)
		}
		members[label] = append(members[label], i)
		if sel.Contains(rec.EntityID) {
			selected[label]++
			size++
		}
	}
	sort.Strings(labels)

	plan := drawPlan{size: size}
	for _, label := range labels {
		plan.groups = append(plan.groups, members[label])
		plan.quotas = append(plan.quotas, selected[label])
	}
	return plan
}

// draw picks plan.size distinct records and returns their summed impact.
// Each group contributes its quota; any shortfall is filled from the
// records left over across all groups.
func (p drawPlan) draw(r *rand.Rand, pool []excess.Record) int {
	sum, taken := 0, 0
	var leftover []int
	for g, group := range p.groups {
		idx := append([]int(nil), group...)
		k := min(p.quotas[g], len(idx))
		partialShuffle(r, idx, k)
		for _, i := range idx[:k] {
			sum += pool[i].Impact
		}
		taken += k
		leftover = append(leftover, idx[k:]...)
	}

	if short := min(p.size-taken, len(leftover)); short > 0 {
		partialShuffle(r, leftover, short)
		for _, i := range leftover[:short] {
			sum += pool[i].Impact
		}
	}
	return sum
}

// partialShuffle moves a uniform random k-subset of idx to its front.
func partialShuffle(r *rand.Rand, idx []int, k int) {
	for i := 0; i < k; i++ {
		j := i + r.IntN(len(idx)-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
}
