package ingest

import (
	"fmt"
	"math"

	"boxoffice/internal/features"
	"boxoffice/pkg/models"
)

// Interval is a closed numeric range.
type Interval struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (i Interval) Contains(v float64) bool {
	return v >= i.Min && v <= i.Max
}

func (i Interval) String() string {
	return fmt.Sprintf("[%g, %g]", i.Min, i.Max)
}

// Bounds are the observed ranges of the canonical dataset. New data is held
// inside them so the model is never asked to extrapolate. Empty means there
// is no canonical data yet and no range applies.
type Bounds struct {
	Budget      Interval `json:"budget"`
	Revenue     Interval `json:"revenue"`
	ProfitRatio Interval `json:"profit_ratio"`
	Empty       bool     `json:"empty"`
}

func BoundsOf(canonical []models.CanonicalRecord) Bounds {
	b := Bounds{Empty: true}
	widen := func(i *Interval, v float64, first bool) {
		if first {
			*i = Interval{Min: v, Max: v}
			return
		}
		i.Min = math.Min(i.Min, v)
		i.Max = math.Max(i.Max, v)
	}
	for _, r := range canonical {
		ratio, ok := features.ProfitRatio(r.Revenue, r.Budget)
		if !ok {
			continue
		}
		first := b.Empty
		widen(&b.Budget, r.Budget, first)
		widen(&b.Revenue, r.Revenue, first)
		widen(&b.ProfitRatio, ratio, first)
		b.Empty = false
	}
	return b
}
