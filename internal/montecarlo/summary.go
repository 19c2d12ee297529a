package montecarlo

import (
	mstats "github.com/montanaflynn/stats"

	"github.com/gustavo-detarso/atestmed-defender-sub000/domain/stats"
	"github.com/gustavo-detarso/atestmed-defender-sub000/internal/errors"
)

const (
	lowerPercent = 2.5
	upperPercent = 97.5
)

// Summarize reduces Monte Carlo draws to the median and the 2.5/97.5
// nearest-rank percentiles. Nearest-rank keeps low <= median <= high and
// makes a constant sample collapse to a single point. The draws are kept on
// the result.
func Summarize(samples []float64) (stats.IntervalResult, error) {
	if len(samples) == 0 {
		return stats.IntervalResult{}, errors.InvalidParameter("cannot summarize an empty sample")
	}

	median, err := mstats.Median(samples)
	if err != nil {
		return stats.IntervalResult{}, errors.Wrap(err, "median")
	}
	low, err := mstats.PercentileNearestRank(samples, lowerPercent)
	if err != nil {
		return stats.IntervalResult{}, errors.Wrap(err, "lower percentile")
	}
	high, err := mstats.PercentileNearestRank(samples, upperPercent)
	if err != nil {
		return stats.IntervalResult{}, errors.Wrap(err, "upper percentile")
	}

	res := stats.IntervalResult{
		Median:  median,
		CILow:   low,
		CIHigh:  high,
		Draws:   len(samples),
		Samples: samples,
	}
	return res, nil
}
