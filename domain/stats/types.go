package stats

import (
	"encoding/json"
	"math"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/core"
)

// ============================================================================
// TEST FAMILIES
// ============================================================================

// TestType identifies the statistical procedure that produced a result
type TestType string

const (
	TestBinomialExact TestType = "binomial_exact" // One-sided exact binomial survival
	TestBetaBinomial  TestType = "beta_binomial"  // Overdispersion-corrected survival
	TestPermutation   TestType = "permutation"    // Monte Carlo null for the selection weight
	TestCMH           TestType = "cmh"            // Cochran-Mantel-Haenszel stratified test
	TestBootstrap     TestType = "bootstrap"      // Percentile CI of the weight
	TestPSA           TestType = "psa"            // Probabilistic sensitivity analysis
)

// FDRMethodBH is the only multiple-testing correction applied.
const FDRMethodBH = "BH"

// WarningCode represents soft conditions recorded on results instead of raised
type WarningCode string

const (
	WarningDegenerateInput   WarningCode = "DEGENERATE_INPUT"    // Entity with N = 0 skipped with neutral values
	WarningRhoFloored        WarningCode = "RHO_FLOORED"         // MoM rho clipped to its lower bound
	WarningRhoUnavailable    WarningCode = "RHO_UNAVAILABLE"     // MoM denominator <= 0, no correction applied
	WarningOddsRatioInfinite WarningCode = "ODDS_RATIO_INFINITE" // CMH denominator sum exactly 0
	WarningCMHZeroVariance   WarningCode = "CMH_ZERO_VARIANCE"   // Sum of hypergeometric variances is 0
	WarningPSAAlphaFixed     WarningCode = "PSA_ALPHA_FIXED"     // alpha outside (0,1) cannot be Beta-distributed
	WarningEmptyResample     WarningCode = "EMPTY_RESAMPLE"      // A Monte Carlo draw had no impact to share
	WarningNoStratumKey      WarningCode = "NO_STRATUM_KEY"      // CMH skipped, no grouping key available
)

// Warnings is an ordered set of warning codes
type Warnings []WarningCode

// Add appends code unless it is already present
func (w *Warnings) Add(code WarningCode) {
	for _, existing := range *w {
		if existing == code {
			return
		}
	}
	*w = append(*w, code)
}

// Merge adds every code of other
func (w *Warnings) Merge(other Warnings) {
	for _, code := range other {
		w.Add(code)
	}
}

// Has reports whether code is present
func (w Warnings) Has(code WarningCode) bool {
	for _, existing := range w {
		if existing == code {
			return true
		}
	}
	return false
}

// ============================================================================
// RESULT VARIANTS
// ============================================================================

// BinomialResult is the exact one-sided test for one entity.
// INVARIANTS: 0 <= WilsonLow <= PHat <= WilsonHigh <= 1; PValue <= QValue <= 1.
type BinomialResult struct {
	PHat       float64 `json:"p_hat"`
	WilsonLow  float64 `json:"wilson_low"`
	WilsonHigh float64 `json:"wilson_high"`
	PValue     float64 `json:"p"`
	QValue     float64 `json:"q"`
}

// BetaBinomialResult is the overdispersion-corrected test for one entity.
// Rho is shared across the family.
type BetaBinomialResult struct {
	Rho    float64 `json:"rho"`
	PValue float64 `json:"p_bb"`
	QValue float64 `json:"q_bb"`
}

// PermutationResult holds the observed selection weight and its Monte Carlo null.
type PermutationResult struct {
	ObservedWeight float64   `json:"w_obs"`
	PValue         float64   `json:"p_value"`
	Replicas       int       `json:"replicas"`
	Stratified     bool      `json:"stratified"`
	NullSamples    []float64 `json:"null_samples,omitempty"`
}

// CMHResult is the Mantel-Haenszel common odds ratio and 1-df statistic.
type CMHResult struct {
	OddsRatio float64  `json:"or_mh"`
	ChiSquare float64  `json:"x2_mh"`
	PValue    float64  `json:"p"`
	Strata    int      `json:"strata"`
	Warnings  Warnings `json:"warnings,omitempty"`
}

// MarshalJSON writes an infinite odds ratio as null; ODDS_RATIO_INFINITE
// on Warnings carries the condition.
func (r CMHResult) MarshalJSON() ([]byte, error) {
	type plain CMHResult
	out := struct {
		plain
		OddsRatio *float64 `json:"or_mh"`
	}{plain: plain(r)}
	if !math.IsInf(r.OddsRatio, 0) && !math.IsNaN(r.OddsRatio) {
		out.OddsRatio = &r.OddsRatio
	}
	return json.Marshal(out)
}

// IntervalResult summarizes a Monte Carlo distribution of the weight.
// INVARIANT: CILow <= Median <= CIHigh.
type IntervalResult struct {
	Median   float64   `json:"median"`
	CILow    float64   `json:"ci_low"`
	CIHigh   float64   `json:"ci_high"`
	Draws    int       `json:"draws"`
	Samples  []float64 `json:"samples,omitempty"`
	Warnings Warnings  `json:"warnings,omitempty"`
}

// TornadoBar is one one-factor-at-a-time perturbation.
type TornadoBar struct {
	Parameter string  `json:"parameter"` // "alpha" or "p_br"
	Direction string  `json:"direction"` // "low" or "high"
	Value     float64 `json:"value"`
	Weight    float64 `json:"weight"`
	Delta     float64 `json:"delta"`
}

// TornadoResult holds the baseline weight and the four perturbation bars
type TornadoResult struct {
	BaselineWeight float64      `json:"baseline_weight"`
	Bars           []TornadoBar `json:"bars"`
}

// EntityVerdict joins the per-entity excess and both test families.
type EntityVerdict struct {
	EntityID     core.EntityID      `json:"entity_id"`
	N            int                `json:"n"`
	NC           int                `json:"nc"`
	Excess       int                `json:"excess"`
	Impact       int                `json:"impact"`
	Selected     bool               `json:"selected"`
	Binomial     BinomialResult     `json:"binomial"`
	BetaBinomial BetaBinomialResult `json:"beta_binomial"`
}

// ClampProbability forces v into [0, 1]; NaN maps to 1.
func ClampProbability(v float64) float64 {
	if math.IsNaN(v) || v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
