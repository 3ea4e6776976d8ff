package detector

import (
	"fmt"

	"github.com/dnldd/alarm/indicator"
	"github.com/dnldd/alarm/shared"
)

// MACDTrendCrossName is the registered name of the multi-period MACD cross detector.
const MACDTrendCrossName = "macd_trend_cross"

// MACDTrendCross detects DIFF and DEA crossings of a short period that agree with the
// trend of a long period. A golden cross is only reported while the long period DIFF is
// positive, a death cross while it is negative.
type MACDTrendCross struct{}

var _ shared.Detector = (*MACDTrendCross)(nil)

// NewMACDTrendCross initializes a new multi-period MACD cross detector.
func NewMACDTrendCross() *MACDTrendCross {
	return &MACDTrendCross{}
}

// trendAt returns the long period entry covering the provided time.
func trendAt(long []indicator.MACD, c cross) (indicator.MACD, bool) {
	var found indicator.MACD
	ok := false
	for idx := range long {
		if long[idx].Date.After(c.Date) {
			break
		}

		found = long[idx]
		ok = true
	}

	return found, ok
}

// Evaluate detects the trend-aligned crossings of the short period since the last run.
func (d *MACDTrendCross) Evaluate(ctx *shared.EvalContext) ([]shared.Detection, error) {
	cfg, err := macdConfig(ctx)
	if err != nil {
		return nil, err
	}

	longSpec := ctx.ExtraString("period_long", "")
	if longSpec == "" {
		return nil, fmt.Errorf("%w: %s requires a period_long parameter",
			shared.ErrConfiguration, MACDTrendCrossName)
	}
	shortSpec := ctx.ExtraString("period_short", ctx.Period)

	short, err := shared.ParsePeriod(shortSpec)
	if err != nil {
		return nil, err
	}
	long, err := shared.ParsePeriod(longSpec)
	if err != nil {
		return nil, err
	}
	if long.Width() <= short.Width() {
		return nil, fmt.Errorf("%w: period_long %s must be wider than period_short %s",
			shared.ErrConfiguration, longSpec, shortSpec)
	}

	shortMACD, err := series(ctx, shortSpec, cfg)
	if err != nil {
		return nil, err
	}
	longMACD, err := series(ctx, longSpec, cfg)
	if err != nil {
		return nil, err
	}

	recent, err := window(ctx, shortMACD, short)
	if err != nil {
		return nil, err
	}

	detections := []shared.Detection{}
	for _, c := range crosses(recent) {
		trend, ok := trendAt(longMACD, c)
		if !ok {
			continue
		}

		if (c.Golden && trend.DIFF > 0) || (!c.Golden && trend.DIFF < 0) {
			detections = append(detections, shared.Detection{
				Date:    c.Date,
				Message: withRemark(fmt.Sprintf("%s on %s with %s trend", c.name(), shortSpec, longSpec), ctx.Remark),
			})
		}
	}

	return detections, nil
}
