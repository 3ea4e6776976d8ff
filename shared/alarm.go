package shared

import (
	"fmt"
	"time"
)

// AlarmProgramConfig represents the configuration of an alarm program.
type AlarmProgramConfig struct {
	// Algorithm is the registered name of the detection algorithm.
	Algorithm string `yaml:"algorithm"`
	// Symbols are the codes of the watched symbols.
	Symbols []string `yaml:"symbols"`
	// Periods are the watched periods. Multi-period algorithms list their smallest period.
	Periods []string `yaml:"periods"`
	// Extra holds free form algorithm parameters.
	Extra map[string]any `yaml:"extra"`
	// Remark is a human readable note.
	Remark string `yaml:"remark"`
}

// AlertKey is the natural key of an alert event. The timestamp is kept as unix seconds so
// keys compare equal regardless of the location a date was parsed in.
type AlertKey struct {
	Symbol string
	Period string
	Unix   int64
}

// NewAlertKey initializes a new alert key.
func NewAlertKey(symbol string, period string, date time.Time) AlertKey {
	return AlertKey{Symbol: symbol, Period: period, Unix: date.Unix()}
}

// String stringifies the provided alert key.
func (k AlertKey) String() string {
	return fmt.Sprintf("%s/%s@%d", k.Symbol, k.Period, k.Unix)
}

// AlertEvent represents an emitted alert, it is immutable once created.
type AlertEvent struct {
	Symbol  string
	Period  string
	Date    time.Time
	Message string
	// TickID identifies the tick that produced the event.
	TickID string
}

// Key returns the natural key of the alert event.
func (e *AlertEvent) Key() AlertKey {
	return NewAlertKey(e.Symbol, e.Period, e.Date)
}

// Detection represents a single finding of a detector.
type Detection struct {
	Date    time.Time
	Message string
}

// EvalContext represents the evaluation context handed to a detector.
type EvalContext struct {
	Symbol string
	Period string
	Extra  map[string]any
	Remark string
	// Series maps period specifiers to the symbol's series, it must not be modified.
	Series map[string][]Bar
	// LastRun is the last evaluation time of the symbol and period, valid when HasRun is set.
	LastRun time.Time
	HasRun  bool
	Now     time.Time
}

// ExtraString returns the string parameter for the provided key or the fallback.
func (c *EvalContext) ExtraString(key string, fallback string) string {
	v, ok := c.Extra[key]
	if !ok {
		return fallback
	}

	s, ok := v.(string)
	if !ok || s == "" {
		return fallback
	}

	return s
}

// ExtraInt returns the integer parameter for the provided key or the fallback.
func (c *EvalContext) ExtraInt(key string, fallback int) int {
	switch v := c.Extra[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
