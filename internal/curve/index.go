package curve

import (
	"sort"

	"pacer/internal/models"
)

// Index answers closest-bucket lookups against one curve without re-sorting
type Index struct {
	curve *models.PacingCurve
	days  []int
}

func NewIndex(c *models.PacingCurve) *Index {
	days := make([]int, 0, len(c.Points))
	for d := range c.Points {
		days = append(days, d)
	}
	sort.Ints(days)
	return &Index{curve: c, days: days}
}

func (ix *Index) Curve() *models.PacingCurve {
	return ix.curve
}

// Closest returns the smallest bucket at or beyond daysUntil, falling back
// to the largest bucket below it. ok is false for an empty curve.
func (ix *Index) Closest(daysUntil int) (point models.CurvePoint, bucket int, ok bool) {
	if len(ix.days) == 0 {
		return models.CurvePoint{}, 0, false
	}
	i := sort.SearchInts(ix.days, daysUntil)
	if i == len(ix.days) {
		i = len(ix.days) - 1
	}
	bucket = ix.days[i]
	return ix.curve.Points[bucket], bucket, true
}
