package market

import (
	"context"
	"testing"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

func TestMarket(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, testLoc)
	one := shared.MustParsePeriod("1m")
	five := shared.MustParsePeriod("5m")
	store := newMemStore()
	store.series["600000"+one.String()] = minuteBars(start, 12)

	logger := zerolog.Nop()
	mkt := NewMarket(&MarketConfig{
		Symbol:     shared.Symbol{Code: "600000", Name: "Pudong"},
		BasePeriod: one,
		Source:     &stubSource{},
		Storer:     store,
		Logger:     &logger,
	})

	// Ensure the base period is never tracked as a derived period.
	mkt.AddPeriod(one)
	mkt.AddPeriod(five)
	mkt.AddPeriod(five)
	assert.False(t, mkt.Ready())

	err := mkt.Bootstrap(context.Background())
	assert.NoError(t, err)
	assert.True(t, mkt.Ready())
	assert.Equal(t, len(mkt.Series(five)), 3)
	assert.Equal(t, len(mkt.Snapshot()), 2)

	// Ensure periods added after bootstrap are derived immediately.
	fifteen := shared.MustParsePeriod("15m")
	mkt.AddPeriod(fifteen)
	assert.Equal(t, len(mkt.Series(fifteen)), 1)

	// Ensure merged bars extend the derived series once re-derived.
	appended := mkt.Merge(minuteBars(start.Add(12*time.Minute), 4))
	assert.Equal(t, len(appended), 4)
	mkt.Rederive()

	derived := mkt.Series(five)
	assert.Equal(t, len(derived), 4)
	assert.Equal(t, derived[3].Date, start.Add(15*time.Minute))
	assert.Equal(t, derived[2].Volume, float64(5))

	last, ok := mkt.LastDate()
	assert.True(t, ok)
	assert.Equal(t, last, start.Add(15*time.Minute))
}
