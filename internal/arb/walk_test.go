package arb

import (
	"math"
	"reflect"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cwyatt/polywatch/internal/domain"
)

func levels(pairs ...float64) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.PriceLevel{Price: pairs[i], Size: pairs[i+1]})
	}
	return out
}

func TestAvgAskPartialFill(t *testing.T) {
	asks := levels(0.50, 10, 0.60, 10)

	avg, ok := avgAsk(asks, 15)
	if !ok {
		t.Fatalf("expected fill")
	}
	// 10*0.50 + 5*0.60 = 8.0, over 15 shares.
	if math.Abs(avg-0.5333) > 0.0001 {
		t.Fatalf("avg = %v, want ~0.5333", avg)
	}
}

func TestAvgAskInsufficientDepth(t *testing.T) {
	asks := levels(0.50, 10)
	if _, ok := avgAsk(asks, 11); ok {
		t.Fatalf("expected insufficient depth")
	}
}

func TestAvgAskZeroQuantity(t *testing.T) {
	if _, ok := avgAsk(levels(0.50, 10), 0); ok {
		t.Fatalf("zero quantity must not fill")
	}
}

func TestComputeDetectsEdge(t *testing.T) {
	asksYes := levels(0.49, 100)
	asksNo := levels(0.49, 100)

	res := Compute(asksYes, asksNo, 50, 5000, 0.01, 0)
	if res.QMax != 100 {
		t.Fatalf("q_max = %v, want 100", res.QMax)
	}
	if res.EdgeAtQMax <= 0.01 {
		t.Fatalf("edge_at_q_max = %v, want > 0.01", res.EdgeAtQMax)
	}
}

func TestComputeKeepsLargestQualifyingQuantity(t *testing.T) {
	// Deeper fills get worse prices; the edge shrinks with quantity but
	// stays above threshold through 150 shares.
	asksYes := levels(0.45, 50, 0.47, 100, 0.60, 1000)
	asksNo := levels(0.45, 50, 0.47, 100, 0.60, 1000)

	res := Compute(asksYes, asksNo, 50, 5000, 0.01, 0)
	if res.QMax != 150 {
		t.Fatalf("q_max = %v, want 150", res.QMax)
	}
}

func TestComputeNoEdge(t *testing.T) {
	asksYes := levels(0.52, 100)
	asksNo := levels(0.52, 100)

	res := Compute(asksYes, asksNo, 50, 5000, 0.01, 0)
	if res.QMax != 0 {
		t.Fatalf("q_max = %v, want 0", res.QMax)
	}
}

func TestComputeFeeErasesEdge(t *testing.T) {
	asksYes := levels(0.49, 100)
	asksNo := levels(0.49, 100)

	// 200 bps on a 0.98 base adds ~0.0196, burying the 0.02 raw edge.
	res := Compute(asksYes, asksNo, 50, 5000, 0.01, 200)
	if res.QMax != 0 {
		t.Fatalf("q_max = %v, want 0 with fee applied", res.QMax)
	}
}

func TestCumulativeQuantitiesClipsAtMax(t *testing.T) {
	got := cumulativeQuantities(levels(0.5, 100, 0.6, 100, 0.7, 100), 150)
	want := []float64{100, 150}
	if len(got) != len(want) {
		t.Fatalf("quantities = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("quantities = %v, want %v", got, want)
		}
	}
}

func TestFillLevelsSplitsLastLevel(t *testing.T) {
	used := fillLevels(levels(0.50, 10, 0.60, 10), 15)
	if len(used) != 2 {
		t.Fatalf("used = %v", used)
	}
	if used[1].Size != 5 {
		t.Fatalf("last fill = %v, want 5", used[1].Size)
	}
}

// genAskLadder produces a sorted ask ladder with positive prices and sizes.
func genAskLadder() gopter.Gen {
	return gen.SliceOfN(5, gen.Struct(reflect.TypeOf(domain.PriceLevel{}), map[string]gopter.Gen{
		"Price": gen.Float64Range(0.01, 0.99),
		"Size":  gen.Float64Range(1, 500),
	})).Map(func(ls []domain.PriceLevel) []domain.PriceLevel {
		sort.Slice(ls, func(i, j int) bool { return ls[i].Price < ls[j].Price })
		return ls
	})
}

func TestAvgAskMonotoneInQuantity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	// On a sorted ask ladder a bigger fill can only get a worse (or equal)
	// average price.
	properties.Property("average ask price never improves with quantity", prop.ForAll(
		func(ladder []domain.PriceLevel, q1, q2 float64) bool {
			if q1 > q2 {
				q1, q2 = q2, q1
			}
			avg1, ok1 := avgAsk(ladder, q1)
			avg2, ok2 := avgAsk(ladder, q2)
			if !ok2 {
				return true // not enough depth for the larger fill
			}
			if !ok1 {
				return false // smaller fill must succeed when larger does
			}
			return avg2 >= avg1-1e-9
		},
		genAskLadder(),
		gen.Float64Range(1, 1000),
		gen.Float64Range(1, 1000),
	))

	properties.Property("filled cost is bounded by best and worst level", prop.ForAll(
		func(ladder []domain.PriceLevel, q float64) bool {
			avg, ok := avgAsk(ladder, q)
			if !ok {
				return true
			}
			return avg >= ladder[0].Price-1e-9 && avg <= ladder[len(ladder)-1].Price+1e-9
		},
		genAskLadder(),
		gen.Float64Range(1, 1000),
	))

	properties.TestingRun(t)
}
