package market

import (
	"math"
	"slices"
	"time"

	"github.com/dnldd/alarm/shared"
)

// compareBars orders bars by date.
func compareBars(a, b shared.Bar) int {
	return a.Date.Compare(b.Date)
}

// Merge appends the incoming bars strictly newer than the last existing bar to the
// existing series. It returns the merged series and the appended bars, the appended set
// is empty when there is nothing new.
func Merge(existing []shared.Bar, incoming []shared.Bar) ([]shared.Bar, []shared.Bar) {
	if len(incoming) == 0 {
		return existing, nil
	}

	sorted := slices.Clone(incoming)
	slices.SortStableFunc(sorted, compareBars)

	var last time.Time
	hasLast := len(existing) > 0
	if hasLast {
		last = existing[len(existing)-1].Date
	}

	appended := make([]shared.Bar, 0, len(sorted))
	for idx := range sorted {
		bar := sorted[idx]
		if hasLast && !bar.Date.After(last) {
			continue
		}

		// Keep timestamps strictly increasing, the first of a duplicated date wins.
		last = bar.Date
		hasLast = true
		appended = append(appended, bar)
	}

	if len(appended) == 0 {
		return existing, nil
	}

	return append(existing, appended...), appended
}

// Resample aggregates the provided base bars into buckets of the target period. Buckets
// without contributing bars are dropped.
func Resample(base []shared.Bar, period shared.Period) []shared.Bar {
	resampled := make([]shared.Bar, 0, len(base))

	var current *shared.Bar
	for idx := range base {
		bar := base[idx]
		start := period.BucketStart(bar.Date)

		if current != nil && current.Date.Equal(start) {
			current.High = math.Max(current.High, bar.High)
			current.Low = math.Min(current.Low, bar.Low)
			current.Close = bar.Close
			current.Volume += bar.Volume
			continue
		}

		resampled = append(resampled, shared.Bar{
			Date:   start,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		})
		current = &resampled[len(resampled)-1]
	}

	return resampled
}

// UpdateDerived recomputes the tail of a derived series from the base series. The derived
// series' last bar may be incomplete, it is discarded and every bucket from its start
// onwards is recomputed.
func UpdateDerived(base []shared.Bar, derived []shared.Bar, period shared.Period) []shared.Bar {
	if len(derived) == 0 {
		return Resample(base, period)
	}

	start := derived[len(derived)-1].Date
	idx, _ := slices.BinarySearchFunc(base, start, func(bar shared.Bar, t time.Time) int {
		return bar.Date.Compare(t)
	})

	fresh := Resample(base[idx:], period)

	updated := make([]shared.Bar, 0, len(derived)-1+len(fresh))
	updated = append(updated, derived[:len(derived)-1]...)
	return append(updated, fresh...)
}

// Since returns the bars dated on or after the provided time.
func Since(bars []shared.Bar, t time.Time) []shared.Bar {
	idx, _ := slices.BinarySearchFunc(bars, t, func(bar shared.Bar, t time.Time) int {
		return bar.Date.Compare(t)
	})

	return bars[idx:]
}
