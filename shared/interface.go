package shared

import (
	"context"
	"time"
)

// DataSource defines the requirements for fetching market data. Returned bar dates are
// the end of their bucket.
type DataSource interface {
	// FetchInitial fetches the most recent bars of a symbol.
	FetchInitial(ctx context.Context, symbol string, period Period, count int) ([]Bar, error)
	// FetchMissing fetches bars after start for the provided symbols. A zero end fetches
	// up to the current time.
	FetchMissing(ctx context.Context, symbols []string, period Period, start time.Time, end time.Time) (map[string][]Bar, error)
}

// DefaultStoreTimeout is the default timeout of a single storage call.
const DefaultStoreTimeout = time.Second * 10

// Storer defines the requirements for persisting market data and alarms.
type Storer interface {
	// ReadSymbols returns the known symbols.
	ReadSymbols(ctx context.Context) ([]Symbol, error)
	// ReadSeries returns the persisted series of a symbol and period.
	ReadSeries(ctx context.Context, symbol string, period Period) ([]Bar, error)
	// AppendSeries persists the provided bars of a symbol and period.
	AppendSeries(ctx context.Context, symbol string, period Period, bars []Bar) error
	// ReadAlarmPrograms returns the configured alarm programs.
	ReadAlarmPrograms(ctx context.Context) ([]AlarmProgramConfig, error)
	// ReadAlertKeys returns the natural keys of every persisted alert event.
	ReadAlertKeys(ctx context.Context) (map[AlertKey]struct{}, error)
	// AppendAlertEvents persists the provided alert events.
	AppendAlertEvents(ctx context.Context, events []AlertEvent) error
}

// Detector defines the requirements for signal detection logic.
type Detector interface {
	// Evaluate runs detection against the provided context, it returns ErrNotReady when
	// there is no new data to act on.
	Evaluate(ctx *EvalContext) ([]Detection, error)
}

// AlertSink defines the requirements for receiving accepted alert events.
type AlertSink interface {
	// Deliver receives a tick's accepted alerts, notify is set when the batch should
	// trigger external notification.
	Deliver(ctx context.Context, events []AlertEvent, notify bool) error
}

// Seeder defines the requirements for seeding reference data into storage.
type Seeder interface {
	// SaveSymbols persists the provided symbols, existing symbols are updated.
	SaveSymbols(ctx context.Context, symbols []Symbol) error
	// SaveAlarmPrograms persists the provided alarm programs, known programs are ignored.
	SaveAlarmPrograms(ctx context.Context, programs []AlarmProgramConfig) error
}
