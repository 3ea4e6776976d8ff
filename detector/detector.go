package detector

import (
	"fmt"
	"time"

	"github.com/dnldd/alarm/engine"
	"github.com/dnldd/alarm/indicator"
	"github.com/dnldd/alarm/shared"
)

const (
	// GoldenCross is the message of a DIFF crossing above DEA.
	GoldenCross = "golden cross"
	// DeathCross is the message of a DIFF crossing below DEA.
	DeathCross = "death cross"
)

// Register adds every detector of the package to the provided registry.
func Register(reg *engine.Registry) error {
	err := reg.Register(MACDCrossName, func() shared.Detector { return NewMACDCross() })
	if err != nil {
		return err
	}

	return reg.Register(MACDTrendCrossName, func() shared.Detector { return NewMACDTrendCross() })
}

// macdConfig reads the MACD parameters from the extra parameters of the provided context.
func macdConfig(ctx *shared.EvalContext) (indicator.MACDConfig, error) {
	price, err := indicator.ParsePriceType(ctx.ExtraString("price_type", ""))
	if err != nil {
		return indicator.MACDConfig{}, err
	}

	cfg := indicator.MACDConfig{
		Fast:   ctx.ExtraInt("fast", indicator.DefaultFastPeriod),
		Slow:   ctx.ExtraInt("slow", indicator.DefaultSlowPeriod),
		Signal: ctx.ExtraInt("signal", indicator.DefaultSignalPeriod),
		Price:  price,
	}

	return cfg, cfg.Validate()
}

// series computes the MACD of the series of the provided period.
func series(ctx *shared.EvalContext, period string, cfg indicator.MACDConfig) ([]indicator.MACD, error) {
	bars, ok := ctx.Series[period]
	if !ok || len(bars) == 0 {
		return nil, fmt.Errorf("%w: no %s series for %s", shared.ErrNotReady, period, ctx.Symbol)
	}

	macd, err := indicator.ComputeMACD(bars, cfg)
	if err != nil {
		return nil, err
	}
	if len(macd) == 0 {
		return nil, fmt.Errorf("%w: not enough %s bars for %s macd, have %d",
			shared.ErrNotReady, period, ctx.Symbol, len(bars))
	}

	return macd, nil
}

// window returns the MACD entries not yet complete at the last run along with their
// preceding entry, so a crossing on the first new entry is detected. Every entry is
// returned when the pair has never run.
func window(ctx *shared.EvalContext, macd []indicator.MACD, period shared.Period) ([]indicator.MACD, error) {
	if !ctx.HasRun {
		return macd, nil
	}

	width := period.Width()
	for idx := range macd {
		if macd[idx].Date.Add(width).After(ctx.LastRun) {
			if idx > 0 {
				idx--
			}

			return macd[idx:], nil
		}
	}

	return nil, fmt.Errorf("%w: no new %s data for %s since %s", shared.ErrNotReady,
		period.String(), ctx.Symbol, ctx.LastRun.Format(shared.MinuteLayout))
}

// cross is a sign change of the MACD histogram.
type cross struct {
	Date   time.Time
	Golden bool
}

// crosses lists the histogram sign changes of the provided entries in order.
func crosses(macd []indicator.MACD) []cross {
	found := []cross{}
	for idx := 1; idx < len(macd); idx++ {
		prev, cur := macd[idx-1].BAR, macd[idx].BAR
		switch {
		case prev < 0 && cur > 0:
			found = append(found, cross{Date: macd[idx].Date, Golden: true})
		case prev > 0 && cur < 0:
			found = append(found, cross{Date: macd[idx].Date, Golden: false})
		}
	}

	return found
}

// name returns the message of the provided cross.
func (c cross) name() string {
	if c.Golden {
		return GoldenCross
	}

	return DeathCross
}

// withRemark appends the program remark to the provided message.
func withRemark(msg string, remark string) string {
	if remark == "" {
		return msg
	}

	return fmt.Sprintf("%s (%s)", msg, remark)
}
