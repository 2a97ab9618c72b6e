// Package grading maps ratios and bureau signals onto statuses and an
// overall risk grade.
//
// Every band is lower-inclusive and upper-exclusive on the value's own axis.
// For ratios where lower is better, a value sitting exactly on a threshold
// therefore falls into the worse tier (DSR 0.30 is Good, not Excellent); for
// scores where higher is better it falls into the better tier (700 is
// Excellent).
package grading

import (
	"math"

	"github.com/opensource-finance/loanscore/internal/domain"
)

// Band maps the half-open range [Lower, Upper) to a status.
type Band struct {
	Lower  float64
	Upper  float64
	Status domain.Status
}

// Contains reports whether v lies within the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Lower && v < b.Upper
}

// AscendingBands builds bands for a ratio where lower is better. bounds are
// the upper limits of Excellent, Good and Fair.
func AscendingBands(bounds [3]float64) []Band {
	return []Band{
		{Lower: math.Inf(-1), Upper: bounds[0], Status: domain.StatusExcellent},
		{Lower: bounds[0], Upper: bounds[1], Status: domain.StatusGood},
		{Lower: bounds[1], Upper: bounds[2], Status: domain.StatusFair},
		{Lower: bounds[2], Upper: math.Inf(1), Status: domain.StatusPoor},
	}
}

// DescendingBands builds bands for a signal where higher is better. bounds
// are the lower limits of Excellent, Good and Fair.
func DescendingBands(bounds [3]float64) []Band {
	return []Band{
		{Lower: bounds[0], Upper: math.Inf(1), Status: domain.StatusExcellent},
		{Lower: bounds[1], Upper: bounds[0], Status: domain.StatusGood},
		{Lower: bounds[2], Upper: bounds[1], Status: domain.StatusFair},
		{Lower: math.Inf(-1), Upper: bounds[2], Status: domain.StatusPoor},
	}
}

// Classify returns the status of the first band containing v. NaN matches
// nothing and is Poor.
func Classify(v float64, bands []Band) domain.Status {
	for _, b := range bands {
		if b.Contains(v) {
			return b.Status
		}
	}
	return domain.StatusPoor
}

// RatioStatus classifies a lower-is-better ratio.
func RatioStatus(v float64, bounds [3]float64) domain.Status {
	return Classify(v, AscendingBands(bounds))
}

// ScoreStatus classifies a bureau score.
func ScoreStatus(score int, bounds [3]int) domain.Status {
	return Classify(float64(score), DescendingBands([3]float64{
		float64(bounds[0]), float64(bounds[1]), float64(bounds[2]),
	}))
}

// DSCRStatus classifies a coverage ratio.
func DSCRStatus(dscr float64, bounds [3]float64) domain.Status {
	return Classify(dscr, DescendingBands(bounds))
}

// BucketStatus classifies a bureau bucket: 0 Excellent, 1 Good, 2 Fair,
// anything else Poor.
func BucketStatus(bucket int) domain.Status {
	switch bucket {
	case 0:
		return domain.StatusExcellent
	case 1:
		return domain.StatusGood
	case 2:
		return domain.StatusFair
	}
	return domain.StatusPoor
}

// Worst returns the worst of the given statuses. Empty and
// insufficient-data statuses do not take part; with nothing to compare the
// result is insufficient data.
func Worst(statuses ...domain.Status) domain.Status {
	worst := domain.StatusInsufficientData
	for _, s := range statuses {
		if s.Rank() == 0 {
			continue
		}
		if worst.Rank() == 0 || s.Rank() > worst.Rank() {
			worst = s
		}
	}
	return worst
}
