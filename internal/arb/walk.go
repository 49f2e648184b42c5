// Package arb detects buy-both mispricings on binary markets: when the
// combined cost of buying YES and NO at the offered asks, fees included,
// comes in under the guaranteed $1 payout.
package arb

import (
	"sort"

	"github.com/cwyatt/polywatch/internal/domain"
)

// avgAsk walks the ask ladder best-first and returns the volume-weighted
// average price of filling qty shares. ok is false when the ladder does not
// carry enough depth.
func avgAsk(levels []domain.PriceLevel, qty float64) (avg float64, ok bool) {
	if qty <= 0 {
		return 0, false
	}
	remaining := qty
	cost := 0.0
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		fill := remaining
		if lvl.Size < fill {
			fill = lvl.Size
		}
		cost += fill * lvl.Price
		remaining -= fill
	}
	if remaining > 0 {
		return 0, false
	}
	return cost / qty, true
}

// fillLevels returns the portion of each ask level consumed by filling qty
// shares, in fill order. Used for signal payloads, not for math.
func fillLevels(levels []domain.PriceLevel, qty float64) []domain.PriceLevel {
	remaining := qty
	var used []domain.PriceLevel
	for _, lvl := range levels {
		if remaining <= 0 {
			break
		}
		fill := remaining
		if lvl.Size < fill {
			fill = lvl.Size
		}
		used = append(used, domain.PriceLevel{Price: lvl.Price, Size: fill})
		remaining -= fill
	}
	return used
}

// cumulativeQuantities returns the running depth at each level boundary,
// clipped to maxShares. The walk stops once the cap is reached.
func cumulativeQuantities(levels []domain.PriceLevel, maxShares float64) []float64 {
	var quantities []float64
	total := 0.0
	for _, lvl := range levels {
		total += lvl.Size
		if total > maxShares {
			total = maxShares
		}
		quantities = append(quantities, total)
		if total >= maxShares {
			break
		}
	}
	return quantities
}

// Result holds the outcome of one buy-both evaluation. QMax is the largest
// candidate quantity whose edge cleared the threshold; zero when no
// candidate did.
type Result struct {
	QMax          float64
	EdgeAtQMax    float64
	AvgYesAtQMax  float64
	AvgNoAtQMax   float64
	EdgeAtMinQ    float64
	EdgeAtMinQSet bool
}

// Compute evaluates the buy-both edge across candidate quantities drawn
// from both ask ladders' level boundaries plus the configured bounds. It
// keeps the LARGEST quantity whose fee-adjusted edge strictly exceeds
// edgeMin.
func Compute(asksYes, asksNo []domain.PriceLevel, minShares, maxShares, edgeMin, feeBps float64) Result {
	seen := make(map[float64]struct{})
	var candidates []float64
	add := func(q float64) {
		if q < minShares {
			return
		}
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		candidates = append(candidates, q)
	}
	for _, q := range cumulativeQuantities(asksYes, maxShares) {
		add(q)
	}
	for _, q := range cumulativeQuantities(asksNo, maxShares) {
		add(q)
	}
	add(minShares)
	add(maxShares)
	sort.Float64s(candidates)

	totalCost := func(avgYes, avgNo float64) float64 {
		base := avgYes + avgNo
		return base + base*feeBps/10000
	}

	var res Result
	if avgYes, ok1 := avgAsk(asksYes, minShares); ok1 {
		if avgNo, ok2 := avgAsk(asksNo, minShares); ok2 {
			res.EdgeAtMinQ = 1 - totalCost(avgYes, avgNo)
			res.EdgeAtMinQSet = true
		}
	}

	for _, q := range candidates {
		avgYes, ok1 := avgAsk(asksYes, q)
		avgNo, ok2 := avgAsk(asksNo, q)
		if !ok1 || !ok2 {
			continue
		}
		edge := 1 - totalCost(avgYes, avgNo)
		if edge > edgeMin {
			res.QMax = q
			res.EdgeAtQMax = edge
			res.AvgYesAtQMax = avgYes
			res.AvgNoAtQMax = avgNo
		}
	}
	return res
}
