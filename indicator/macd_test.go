package indicator

import (
	"errors"
	"testing"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/peterldowns/testy/assert"
)

// priceBars creates one minute bars with every price set to the provided values.
func priceBars(values []float64) []shared.Bar {
	start := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	bars := make([]shared.Bar, len(values))
	for idx, v := range values {
		bars[idx] = shared.Bar{
			Date:  start.Add(time.Minute * time.Duration(idx)),
			Open:  v,
			High:  v + 1,
			Low:   v - 1,
			Close: v,
		}
	}

	return bars
}

func defaultMACDConfig() MACDConfig {
	return MACDConfig{
		Fast:   DefaultFastPeriod,
		Slow:   DefaultSlowPeriod,
		Signal: DefaultSignalPeriod,
		Price:  Open,
	}
}

func TestParsePriceType(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    PriceType
		wantErr bool
	}{
		{name: "empty defaults to open", input: "", want: Open},
		{name: "close", input: "close", want: Close},
		{name: "high", input: "high", want: High},
		{name: "unknown", input: "volume", wantErr: true},
	}

	for _, test := range tests {
		got, err := ParsePriceType(test.input)
		if test.wantErr {
			assert.True(t, errors.Is(err, shared.ErrConfiguration))
			continue
		}

		assert.NoError(t, err)
		assert.Equal(t, got, test.want)
	}
}

func TestPrices(t *testing.T) {
	bars := priceBars([]float64{10, 11})

	// Ensure the requested price is extracted.
	assert.Equal(t, Prices(bars, Open), []float64{10, 11})
	assert.Equal(t, Prices(bars, High), []float64{11, 12})
	assert.Equal(t, Prices(bars, Low), []float64{9, 10})
}

func TestComputeMACD(t *testing.T) {
	// Ensure invalid parameters are rejected.
	_, err := ComputeMACD(priceBars([]float64{1}), MACDConfig{Fast: 26, Slow: 12, Signal: 9})
	assert.True(t, errors.Is(err, shared.ErrConfiguration))

	_, err = ComputeMACD(priceBars([]float64{1}), MACDConfig{Fast: 0, Slow: 12, Signal: 9})
	assert.True(t, errors.Is(err, shared.ErrConfiguration))

	cfg := defaultMACDConfig()

	// Ensure too few bars yield no values.
	short := make([]float64, cfg.Lookback())
	macd, err := ComputeMACD(priceBars(short), cfg)
	assert.NoError(t, err)
	assert.Equal(t, len(macd), 0)

	// Ensure a flat series has a flat macd.
	flat := make([]float64, 60)
	for idx := range flat {
		flat[idx] = 10
	}
	bars := priceBars(flat)
	macd, err = ComputeMACD(bars, cfg)
	assert.NoError(t, err)
	assert.Equal(t, len(macd), 60-cfg.Lookback())
	assert.Equal(t, macd[0].Date, bars[cfg.Lookback()].Date)
	for idx := range macd {
		assert.Equal(t, macd[idx].DIFF, float64(0))
		assert.Equal(t, macd[idx].BAR, float64(0))
	}

	// Ensure a rising series has a positive diff.
	rising := make([]float64, 80)
	for idx := range rising {
		rising[idx] = float64(10 + idx)
	}
	macd, err = ComputeMACD(priceBars(rising), cfg)
	assert.NoError(t, err)
	last := macd[len(macd)-1]
	assert.GreaterThan(t, last.DIFF, float64(0))
}
