package indicator

import (
	"fmt"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/markcheno/go-talib"
)

const (
	// DefaultFastPeriod is the default fast EMA period of the MACD.
	DefaultFastPeriod = 12
	// DefaultSlowPeriod is the default slow EMA period of the MACD.
	DefaultSlowPeriod = 26
	// DefaultSignalPeriod is the default signal EMA period of the MACD.
	DefaultSignalPeriod = 9
)

// PriceType represents the bar price an indicator is computed from.
type PriceType string

const (
	Open  PriceType = "open"
	High  PriceType = "high"
	Low   PriceType = "low"
	Close PriceType = "close"
)

// ParsePriceType parses the provided price type. An empty value defaults to the open price.
func ParsePriceType(s string) (PriceType, error) {
	switch PriceType(s) {
	case "":
		return Open, nil
	case Open, High, Low, Close:
		return PriceType(s), nil
	default:
		return "", fmt.Errorf("%w: unknown price type %q", shared.ErrConfiguration, s)
	}
}

// Prices extracts the provided price type of every bar.
func Prices(bars []shared.Bar, price PriceType) []float64 {
	values := make([]float64, len(bars))
	for idx := range bars {
		switch price {
		case High:
			values[idx] = bars[idx].High
		case Low:
			values[idx] = bars[idx].Low
		case Close:
			values[idx] = bars[idx].Close
		default:
			values[idx] = bars[idx].Open
		}
	}

	return values
}

// MACD represents a unit MACD entry for a bar.
type MACD struct {
	Date time.Time
	DIFF float64
	DEA  float64
	BAR  float64
}

// MACDConfig represents the MACD parameters.
type MACDConfig struct {
	Fast   int
	Slow   int
	Signal int
	Price  PriceType
}

// Validate asserts the config sane inputs.
func (cfg *MACDConfig) Validate() error {
	if cfg.Fast <= 0 || cfg.Slow <= 0 || cfg.Signal <= 0 {
		return fmt.Errorf("%w: macd periods must be positive, got %d/%d/%d",
			shared.ErrConfiguration, cfg.Fast, cfg.Slow, cfg.Signal)
	}
	if cfg.Fast >= cfg.Slow {
		return fmt.Errorf("%w: macd fast period %d must be shorter than slow period %d",
			shared.ErrConfiguration, cfg.Fast, cfg.Slow)
	}

	return nil
}

// Lookback returns the number of leading bars without a defined MACD value.
func (cfg *MACDConfig) Lookback() int {
	return cfg.Slow + cfg.Signal - 2
}

// ComputeMACD computes the MACD of the provided bars. Bars without a defined value are
// dropped, the result is empty when there are not enough bars.
func ComputeMACD(bars []shared.Bar, cfg MACDConfig) ([]MACD, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	lookback := cfg.Lookback()
	if len(bars) <= lookback {
		return []MACD{}, nil
	}

	diff, dea, bar := talib.Macd(Prices(bars, cfg.Price), cfg.Fast, cfg.Slow, cfg.Signal)

	macd := make([]MACD, 0, len(bars)-lookback)
	for idx := lookback; idx < len(bars); idx++ {
		macd = append(macd, MACD{
			Date: bars[idx].Date,
			DIFF: diff[idx],
			DEA:  dea[idx],
			BAR:  bar[idx],
		})
	}

	return macd, nil
}
