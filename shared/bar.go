package shared

import (
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// Bar represents a unit OHLC data point for a time bucket. The date is the bucket start.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Symbol represents a tracked instrument.
type Symbol struct {
	Code string
	Name string
}

// ParseBars parses bars from the provided json data, dates are parsed in the provided location.
func ParseBars(data []gjson.Result, loc *time.Location) ([]Bar, error) {
	bars := make([]Bar, 0, len(data))

	for idx := range data {
		var bar Bar

		bar.Open = data[idx].Get("open").Float()
		bar.High = data[idx].Get("high").Float()
		bar.Low = data[idx].Get("low").Float()
		bar.Close = data[idx].Get("close").Float()
		bar.Volume = data[idx].Get("volume").Float()

		dt, err := time.ParseInLocation(DateLayout, data[idx].Get("date").String(), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing bar date: %w", err)
		}

		bar.Date = dt
		bars = append(bars, bar)
	}

	return bars, nil
}

// ShiftBars returns a copy of the provided bars with their dates moved by the provided offset.
func ShiftBars(bars []Bar, offset time.Duration) []Bar {
	shifted := make([]Bar, len(bars))
	for idx := range bars {
		shifted[idx] = bars[idx]
		shifted[idx].Date = bars[idx].Date.Add(offset)
	}

	return shifted
}
