package market

import (
	"testing"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

var testLoc = time.FixedZone("CST", 8*60*60)

// minuteBars generates one minute bars starting at the provided time. Each bar's open is
// its index so aggregates are easy to verify.
func minuteBars(start time.Time, n int) []shared.Bar {
	bars := make([]shared.Bar, 0, n)
	for idx := range n {
		v := float64(idx)
		bars = append(bars, shared.Bar{
			Date:   start.Add(time.Minute * time.Duration(idx)),
			Open:   v,
			High:   v + 2,
			Low:    v - 1,
			Close:  v + 1,
			Volume: 1,
		})
	}

	return bars
}

func TestMerge(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, testLoc)
	existing := minuteBars(start, 5)
	last := existing[len(existing)-1].Date

	// Ensure only bars strictly newer than the last existing bar are appended.
	incoming := []shared.Bar{
		{Date: last, Open: 100},
		{Date: last.Add(time.Minute), Open: 101},
	}
	merged, appended := Merge(existing, incoming)
	assert.Equal(t, len(appended), 1)
	assert.Equal(t, appended[0].Date, last.Add(time.Minute))
	assert.Equal(t, len(merged), 6)
	assert.Equal(t, merged[4].Open, float64(4))

	// Ensure merging the same batch twice is idempotent.
	batch := minuteBars(start.Add(time.Minute*5), 3)
	once, _ := Merge(minuteBars(start, 5), batch)
	twice, _ := Merge(minuteBars(start, 5), batch)
	twice, again := Merge(twice, batch)
	assert.Equal(t, len(again), 0)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("mismatching merged series (-once +twice):\n%s", diff)
	}

	// Ensure unordered and duplicated incoming bars are sorted and de-duplicated.
	unordered := []shared.Bar{
		{Date: start.Add(time.Minute * 7), Open: 7},
		{Date: start.Add(time.Minute * 5), Open: 5},
		{Date: start.Add(time.Minute * 6), Open: 6},
		{Date: start.Add(time.Minute * 6), Open: 60},
	}
	_, appended = Merge(minuteBars(start, 5), unordered)
	assert.Equal(t, len(appended), 3)
	assert.Equal(t, appended[0].Open, float64(5))
	assert.Equal(t, appended[1].Open, float64(6))
	assert.Equal(t, appended[2].Open, float64(7))

	// Ensure merging into an empty series appends everything.
	merged, appended = Merge(nil, minuteBars(start, 3))
	assert.Equal(t, len(merged), 3)
	assert.Equal(t, len(appended), 3)

	// Ensure merging nothing new signals a no-op.
	_, appended = Merge(existing, nil)
	assert.Equal(t, len(appended), 0)
}

func TestResample(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, testLoc)
	base := minuteBars(start, 15)
	five := shared.MustParsePeriod("5m")

	// Ensure whole contiguous buckets resample into one bar each.
	bars := Resample(base, five)
	assert.Equal(t, len(bars), 3)
	for idx := range bars {
		first := float64(idx * 5)
		last := first + 4
		assert.Equal(t, bars[idx].Date, start.Add(time.Minute*time.Duration(idx*5)))
		assert.Equal(t, bars[idx].Open, first)
		assert.Equal(t, bars[idx].Close, last+1)
		assert.Equal(t, bars[idx].High, last+2)
		assert.Equal(t, bars[idx].Low, first-1)
		assert.Equal(t, bars[idx].Volume, float64(5))
	}

	// Ensure buckets without contributing bars are dropped.
	gapped := append(minuteBars(start, 5), minuteBars(start.Add(time.Minute*20), 5)...)
	bars = Resample(gapped, five)
	assert.Equal(t, len(bars), 2)
	assert.Equal(t, bars[1].Date, start.Add(time.Minute*20))

	// Ensure buckets are anchored to the calendar day rather than the first bar.
	offset := minuteBars(start.Add(time.Minute*3), 4)
	bars = Resample(offset, five)
	assert.Equal(t, len(bars), 2)
	assert.Equal(t, bars[0].Date, start)
	assert.Equal(t, bars[1].Date, start.Add(time.Minute*5))

	// Ensure resampling an empty series yields an empty series.
	assert.Equal(t, len(Resample(nil, five)), 0)
}

func TestUpdateDerived(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, testLoc)
	five := shared.MustParsePeriod("5m")
	full := minuteBars(start, 17)

	// Ensure an incomplete last bucket is completed by late arriving base bars.
	partial := full[:7]
	derived := Resample(partial, five)
	assert.Equal(t, len(derived), 2)
	assert.Equal(t, derived[1].Close, float64(7))

	updated := UpdateDerived(full, derived, five)
	if diff := cmp.Diff(Resample(full, five), updated); diff != "" {
		t.Errorf("mismatching derived series (-want +got):\n%s", diff)
	}
	assert.Equal(t, updated[1].Close, float64(10))

	// Ensure an empty derived series is fully derived.
	updated = UpdateDerived(full, nil, five)
	assert.Equal(t, len(updated), 4)

	// Ensure updating without new base bars leaves the series unchanged.
	again := UpdateDerived(full, updated, five)
	if diff := cmp.Diff(updated, again); diff != "" {
		t.Errorf("mismatching derived series (-want +got):\n%s", diff)
	}
}

func TestSince(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, testLoc)
	bars := minuteBars(start, 10)

	assert.Equal(t, len(Since(bars, start)), 10)
	assert.Equal(t, len(Since(bars, start.Add(time.Minute*4))), 6)
	assert.Equal(t, len(Since(bars, start.Add(time.Second*30))), 9)
	assert.Equal(t, len(Since(bars, start.Add(time.Hour))), 0)
}
