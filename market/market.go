package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/rs/zerolog"
)

const (
	// DefaultHistoryLimit caps the bars loaded on bootstrap, roughly a trading year of
	// one minute bars (52 weeks * 5 days * 4 hours * 60 minutes).
	DefaultHistoryLimit = 62400
	// DefaultInitialBars is the number of bars requested from the data source when no
	// persisted series exists.
	DefaultInitialBars = 5000
)

// MarketConfig represents the configuration of a tracked symbol.
type MarketConfig struct {
	// Symbol is the tracked symbol.
	Symbol shared.Symbol
	// BasePeriod is the only period populated from the data source.
	BasePeriod shared.Period
	// Periods are the derived periods maintained for the symbol.
	Periods []shared.Period
	// HistoryLimit caps the base series on initial load.
	HistoryLimit int
	// InitialBars is the number of bars fetched when nothing is persisted.
	InitialBars int
	// Source fetches market data.
	Source shared.DataSource
	// Storer persists market data.
	Storer shared.Storer
	// StoreTimeout is the timeout applied to every storage call.
	StoreTimeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Market tracks the base and derived series of a symbol.
type Market struct {
	cfg    *MarketConfig
	series map[shared.Period][]shared.Bar
	ready  bool
}

// NewMarket initializes a new market.
func NewMarket(cfg *MarketConfig) *Market {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.InitialBars <= 0 {
		cfg.InitialBars = DefaultInitialBars
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = shared.DefaultStoreTimeout
	}

	return &Market{
		cfg:    cfg,
		series: make(map[shared.Period][]shared.Bar),
	}
}

// Symbol returns the tracked symbol.
func (m *Market) Symbol() shared.Symbol {
	return m.cfg.Symbol
}

// Ready checks whether the market has been bootstrapped.
func (m *Market) Ready() bool {
	return m.ready
}

// AddPeriod starts tracking the provided derived period.
func (m *Market) AddPeriod(period shared.Period) {
	if period == m.cfg.BasePeriod {
		return
	}

	for idx := range m.cfg.Periods {
		if m.cfg.Periods[idx] == period {
			return
		}
	}

	m.cfg.Periods = append(m.cfg.Periods, period)
	if m.ready {
		m.series[period] = Resample(m.series[m.cfg.BasePeriod], period)
	}
}

// Bootstrap loads the persisted base series of the market, falling back to fetching an
// initial window from the data source. Derived periods are computed from the loaded base.
func (m *Market) Bootstrap(ctx context.Context) error {
	code := m.cfg.Symbol.Code
	base := m.cfg.BasePeriod

	readCtx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	bars, err := m.cfg.Storer.ReadSeries(readCtx, code, base)
	cancel()
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		m.cfg.Logger.Error().Msgf("reading persisted %s series for %s: %v", base.String(), code, err)
	}

	if len(bars) == 0 {
		fetched, err := m.cfg.Source.FetchInitial(ctx, code, base, m.cfg.InitialBars)
		if err != nil {
			return fmt.Errorf("fetching initial %s series for %s: %w", base.String(), code, err)
		}
		if len(fetched) == 0 {
			return fmt.Errorf("fetching initial %s series for %s: %w", base.String(), code, shared.ErrDataUnavailable)
		}

		// Data source bars are dated at their bucket end.
		bars, _ = Merge(nil, shared.ShiftBars(fetched, -base.Width()))

		err = m.appendSeries(ctx, bars)
		if err != nil {
			m.cfg.Logger.Error().Msgf("persisting initial %s series for %s: %v", base.String(), code, err)
		}
	}

	if len(bars) > m.cfg.HistoryLimit {
		bars = bars[len(bars)-m.cfg.HistoryLimit:]
	}

	m.series[base] = bars
	for _, period := range m.cfg.Periods {
		m.series[period] = Resample(bars, period)
	}

	m.ready = true
	m.cfg.Logger.Info().Msgf("bootstrapped %s (%s) with %d %s bars", code, m.cfg.Symbol.Name, len(bars), base.String())

	return nil
}

// appendSeries persists the provided base period bars within the store timeout.
func (m *Market) appendSeries(ctx context.Context, bars []shared.Bar) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	return m.cfg.Storer.AppendSeries(ctx, m.cfg.Symbol.Code, m.cfg.BasePeriod, bars)
}

// Merge merges the provided base period bars, dated at their bucket start, into the
// base series. It returns the appended bars.
func (m *Market) Merge(incoming []shared.Bar) []shared.Bar {
	base := m.cfg.BasePeriod
	merged, appended := Merge(m.series[base], incoming)
	m.series[base] = merged

	return appended
}

// Rederive incrementally updates every derived period from the base series.
func (m *Market) Rederive() {
	base := m.series[m.cfg.BasePeriod]
	for _, period := range m.cfg.Periods {
		m.series[period] = UpdateDerived(base, m.series[period], period)
	}
}

// Series returns the series of the provided period.
func (m *Market) Series(period shared.Period) []shared.Bar {
	return m.series[period]
}

// Snapshot returns the series of every tracked period keyed by period specifier.
func (m *Market) Snapshot() map[string][]shared.Bar {
	snapshot := make(map[string][]shared.Bar, len(m.series))
	for period, bars := range m.series {
		snapshot[period.String()] = bars
	}

	return snapshot
}

// LastDate returns the date of the last base bar.
func (m *Market) LastDate() (time.Time, bool) {
	bars := m.series[m.cfg.BasePeriod]
	if len(bars) == 0 {
		return time.Time{}, false
	}

	return bars[len(bars)-1].Date, true
}

// Today returns the base bars of the calendar day of the provided date.
func (m *Market) Today(date time.Time) []shared.Bar {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	end := start.AddDate(0, 0, 1)

	bars := Since(m.series[m.cfg.BasePeriod], start)
	for idx := range bars {
		if !bars[idx].Date.Before(end) {
			return bars[:idx]
		}
	}

	return bars
}
