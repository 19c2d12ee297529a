package significance

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"
)

// logChoose returns log(n choose k) via log-gamma.
func logChoose(n, k int) float64 {
	a, _ := math.Lgamma(float64(n) + 1)
	b, _ := math.Lgamma(float64(k) + 1)
	c, _ := math.Lgamma(float64(n-k) + 1)
	return a - b - c
}

// LogBinomialPMF returns log P[X = k] for X ~ Binomial(n, p). The boundary
// rates p = 0 and p = 1 put all mass on k = 0 and k = n respectively.
func LogBinomialPMF(k, n int, p float64) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	switch p {
	case 0:
		if k == 0 {
			return 0
		}
		return math.Inf(-1)
	case 1:
		if k == n {
			return 0
		}
		return math.Inf(-1)
	}
	return logChoose(n, k) + float64(k)*math.Log(p) + float64(n-k)*math.Log1p(-p)
}

// LogBetaBinomialPMF returns log P[X = k] for X ~ BetaBinomial(n, a, b).
func LogBetaBinomialPMF(k, n int, a, b float64) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	return logChoose(n, k) + mathext.Lbeta(float64(k)+a, float64(n-k)+b) - mathext.Lbeta(a, b)
}

// upperTail returns P[X >= k] for a pmf on 0..n given in log space. The sum
// runs through log-sum-exp so large n does not underflow term by term.
func upperTail(k, n int, logPMF func(int) float64) float64 {
	if k <= 0 {
		return 1
	}
	if k > n {
		return 0
	}
	terms := make([]float64, 0, n-k+1)
	for j := k; j <= n; j++ {
		terms = append(terms, logPMF(j))
	}
	lse := floats.LogSumExp(terms)
	if math.IsInf(lse, -1) {
		return 0
	}
	return math.Min(1, math.Exp(lse))
}

// ChiSquareSurvival1 returns P[X > x] for X ~ chi-square with one degree of
// freedom, which equals erfc(sqrt(x/2)).
func ChiSquareSurvival1(x float64) float64 {
	if math.IsNaN(x) {
		return 1
	}
	if x <= 0 {
		return 1
	}
	return distuv.ChiSquared{K: 1}.Survival(x)
}
