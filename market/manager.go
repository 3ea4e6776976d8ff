package market

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/rs/zerolog"
)

// ManagerConfig represents the market manager configuration.
type ManagerConfig struct {
	// Symbols are the tracked symbols.
	Symbols []shared.Symbol
	// Periods maps symbol codes to their derived periods.
	Periods map[string][]shared.Period
	// BasePeriod is the only period populated from the data source.
	BasePeriod shared.Period
	// HistoryLimit caps base series on initial load.
	HistoryLimit int
	// InitialBars is the number of bars fetched when nothing is persisted.
	InitialBars int
	// Source fetches market data.
	Source shared.DataSource
	// Storer persists market data.
	Storer shared.Storer
	// StoreTimeout is the timeout applied to every storage call, it defaults to
	// shared.DefaultStoreTimeout.
	StoreTimeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if len(cfg.Symbols) == 0 {
		errs = errors.Join(errs, fmt.Errorf("no symbols provided for market manager"))
	}
	if cfg.BasePeriod.Count == 0 {
		errs = errors.Join(errs, fmt.Errorf("base period cannot be empty"))
	}
	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("data source cannot be nil"))
	}
	if cfg.Storer == nil {
		errs = errors.Join(errs, fmt.Errorf("storer cannot be nil"))
	}
	if cfg.StoreTimeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("store timeout cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager maintains the time series of all tracked symbols. It is not safe for concurrent
// use, all access happens within a single tick.
type Manager struct {
	cfg     *ManagerConfig
	markets map[string]*Market
	order   []string
}

// NewManager initializes a new market manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	mgr := &Manager{
		cfg:     cfg,
		markets: make(map[string]*Market, len(cfg.Symbols)),
		order:   make([]string, 0, len(cfg.Symbols)),
	}

	for idx := range cfg.Symbols {
		symbol := cfg.Symbols[idx]
		if _, ok := mgr.markets[symbol.Code]; ok {
			continue
		}

		marketLogger := cfg.Logger.With().Str("symbol", symbol.Code).Logger()
		mkt := NewMarket(&MarketConfig{
			Symbol:       symbol,
			BasePeriod:   cfg.BasePeriod,
			HistoryLimit: cfg.HistoryLimit,
			InitialBars:  cfg.InitialBars,
			Source:       cfg.Source,
			Storer:       cfg.Storer,
			StoreTimeout: cfg.StoreTimeout,
			Logger:       &marketLogger,
		})
		for _, period := range cfg.Periods[symbol.Code] {
			mkt.AddPeriod(period)
		}

		mgr.markets[symbol.Code] = mkt
		mgr.order = append(mgr.order, symbol.Code)
	}

	return mgr, nil
}

// Market returns the market of the provided symbol.
func (m *Manager) Market(code string) (*Market, bool) {
	mkt, ok := m.markets[code]
	return mkt, ok
}

// Bootstrap loads the series of every market not yet bootstrapped. Markets that fail to
// load are retried on the next refresh.
func (m *Manager) Bootstrap(ctx context.Context) {
	for _, code := range m.order {
		mkt := m.markets[code]
		if mkt.Ready() {
			continue
		}

		err := mkt.Bootstrap(ctx)
		if err != nil {
			m.cfg.Logger.Error().Msgf("bootstrapping %s: %v", code, err)
		}
	}
}

// Refresh fetches the base bars missing since the last known bar of every market, merges
// them and re-derives the dependent periods. Symbols with nothing new are left untouched.
// Persistence failures are returned after every symbol has been processed.
func (m *Manager) Refresh(ctx context.Context, now time.Time) error {
	m.Bootstrap(ctx)

	base := m.cfg.BasePeriod
	codes := make([]string, 0, len(m.order))
	var start time.Time
	for _, code := range m.order {
		last, ok := m.markets[code].LastDate()
		if !ok {
			continue
		}

		codes = append(codes, code)
		if start.IsZero() || last.Before(start) {
			start = last
		}
	}

	if len(codes) == 0 {
		return fmt.Errorf("no bootstrapped markets to refresh: %w", shared.ErrDataUnavailable)
	}

	// The data source dates bars at their bucket end.
	width := base.Width()
	data, err := m.cfg.Source.FetchMissing(ctx, codes, base, start.Add(width), now)
	if err != nil {
		return fmt.Errorf("fetching missing %s bars: %w", base.String(), err)
	}

	var errs error
	for _, code := range codes {
		bars := data[code]
		if len(bars) == 0 {
			m.cfg.Logger.Debug().Msgf("no new %s bars for %s", base.String(), code)
			continue
		}

		mkt := m.markets[code]
		appended := mkt.Merge(shared.ShiftBars(bars, -width))
		if len(appended) == 0 {
			continue
		}

		err := mkt.appendSeries(ctx, appended)
		if err != nil {
			m.cfg.Logger.Error().Msgf("persisting %d %s bars for %s: %v", len(appended), base.String(), code, err)
			errs = errors.Join(errs, fmt.Errorf("%w: appending %s series for %s: %v", shared.ErrPersistence, base.String(), code, err))
		}

		mkt.Rederive()
		m.cfg.Logger.Debug().Msgf("merged %d %s bars for %s", len(appended), base.String(), code)
	}

	return errs
}

// Snapshot returns the multi-period series of the provided symbol.
func (m *Manager) Snapshot(code string) (map[string][]shared.Bar, bool) {
	mkt, ok := m.markets[code]
	if !ok || !mkt.Ready() {
		return nil, false
	}

	return mkt.Snapshot(), true
}

// Today returns the base bars of the provided symbol for the calendar day of the provided date.
func (m *Manager) Today(code string, date time.Time) ([]shared.Bar, error) {
	mkt, ok := m.markets[code]
	if !ok {
		return nil, fmt.Errorf("no market found for %s: %w", code, shared.ErrNotFound)
	}

	return mkt.Today(date), nil
}

// Symbols returns the tracked symbols.
func (m *Manager) Symbols() []shared.Symbol {
	symbols := make([]shared.Symbol, 0, len(m.order))
	for _, code := range m.order {
		symbols = append(symbols, m.markets[code].Symbol())
	}

	return symbols
}
