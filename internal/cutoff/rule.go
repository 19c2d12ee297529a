package cutoff

import "github.com/gustavo-detarso/atestmed-defender-sub000/internal/excess"

// Rule chooses the selection S* for one impact computation.
type Rule func(impact *excess.Impact) excess.Selection

// Fixed always selects the same entities.
func Fixed(sel excess.Selection) Rule {
	return func(*excess.Impact) excess.Selection { return sel }
}

// AtScore selects eligible entities scoring at least cutoff with N >= cutN.
func AtScore(cutoff float64, cutN int) Rule {
	return func(impact *excess.Impact) excess.Selection {
		return impact.SelectByCutoff(cutoff, cutN)
	}
}

// AtElbow re-derives S* from the impact's own curve.
func AtElbow(cutN int) Rule {
	return func(impact *excess.Impact) excess.Selection {
		_, sel, _ := Select(impact, cutN)
		return sel
	}
}
