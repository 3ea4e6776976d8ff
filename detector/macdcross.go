package detector

import "github.com/dnldd/alarm/shared"

// MACDCrossName is the registered name of the MACD cross detector.
const MACDCrossName = "macd_cross"

// MACDCross detects DIFF and DEA crossings of a single period.
type MACDCross struct{}

var _ shared.Detector = (*MACDCross)(nil)

// NewMACDCross initializes a new MACD cross detector.
func NewMACDCross() *MACDCross {
	return &MACDCross{}
}

// Evaluate detects the crossings of the evaluated period since the last run.
func (d *MACDCross) Evaluate(ctx *shared.EvalContext) ([]shared.Detection, error) {
	cfg, err := macdConfig(ctx)
	if err != nil {
		return nil, err
	}

	period, err := shared.ParsePeriod(ctx.Period)
	if err != nil {
		return nil, err
	}

	macd, err := series(ctx, ctx.Period, cfg)
	if err != nil {
		return nil, err
	}

	recent, err := window(ctx, macd, period)
	if err != nil {
		return nil, err
	}

	found := crosses(recent)
	detections := make([]shared.Detection, 0, len(found))
	for _, c := range found {
		detections = append(detections, shared.Detection{
			Date:    c.Date,
			Message: withRemark(c.name(), ctx.Remark),
		})
	}

	return detections, nil
}
