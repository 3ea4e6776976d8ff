package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/rs/zerolog"
)

const (
	// maxWorkers is the default maximum number of concurrent fetches.
	maxWorkers = 8
	// defaultFetchTimeout is the default timeout of a single fetch.
	defaultFetchTimeout = time.Second * 10
)

// ManagerConfig represents the configuration for the fetch manager.
type ManagerConfig struct {
	// Source represents the wrapped data source.
	Source shared.DataSource
	// Timeout is the timeout applied to every fetch.
	Timeout time.Duration
	// Workers is the maximum number of concurrent symbol fetches.
	Workers int
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ManagerConfig) Validate() error {
	var errs error

	if cfg.Source == nil {
		errs = errors.Join(errs, fmt.Errorf("data source cannot be nil"))
	}
	if cfg.Timeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch timeout cannot be negative"))
	}
	if cfg.Workers < 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch workers cannot be negative"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Manager wraps a data source, fetching symbols concurrently with a bounded number of
// workers and a timeout per fetch. A failing or slow symbol only drops that symbol.
type Manager struct {
	cfg     *ManagerConfig
	workers chan struct{}
}

// Ensure the Manager implements the DataSource interface.
var _ shared.DataSource = (*Manager)(nil)

// NewManager initializes the fetch manager.
func NewManager(cfg *ManagerConfig) (*Manager, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.Workers == 0 {
		cfg.Workers = maxWorkers
	}

	return &Manager{
		cfg:     cfg,
		workers: make(chan struct{}, cfg.Workers),
	}, nil
}

// FetchInitial fetches the most recent bars of a symbol within the fetch timeout.
func (m *Manager) FetchInitial(ctx context.Context, symbol string, period shared.Period, count int) ([]shared.Bar, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	bars, err := m.cfg.Source.FetchInitial(fetchCtx, symbol, period, count)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no %s bars for %s: %w", period.String(), symbol, shared.ErrDataUnavailable)
	}

	return bars, nil
}

// FetchMissing fetches the missing bars of every symbol concurrently.
func (m *Manager) FetchMissing(ctx context.Context, symbols []string, period shared.Period, start time.Time, end time.Time) (map[string][]shared.Bar, error) {
	data := make(map[string][]shared.Bar, len(symbols))
	var dataMtx sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		m.workers <- struct{}{}
		wg.Add(1)

		go func(symbol string) {
			defer func() {
				<-m.workers
				wg.Done()
			}()

			fetchCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
			defer cancel()

			resp, err := m.cfg.Source.FetchMissing(fetchCtx, []string{symbol}, period, start, end)
			if err != nil {
				if errors.Is(err, shared.ErrDataUnavailable) {
					m.cfg.Logger.Debug().Msgf("no missing %s bars for %s: %v", period.String(), symbol, err)
					return
				}

				m.cfg.Logger.Error().Msgf("fetching missing %s bars for %s: %v", period.String(), symbol, err)
				return
			}

			bars := resp[symbol]
			if len(bars) == 0 {
				return
			}

			dataMtx.Lock()
			data[symbol] = bars
			dataMtx.Unlock()
		}(symbol)
	}

	wg.Wait()

	if len(data) == 0 {
		return nil, fmt.Errorf("no missing %s bars for %d symbols: %w", period.String(),
			len(symbols), shared.ErrDataUnavailable)
	}

	return data, nil
}
