package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// FileSourceConfig represents the file data source configuration.
type FileSourceConfig struct {
	// FilePath is the filepath to the market data.
	FilePath string
	// Location is the location bar dates are expressed in.
	Location *time.Location
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *FileSourceConfig) Validate() error {
	var errs error

	if cfg.FilePath == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: data file path cannot be empty", shared.ErrConfiguration))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: data file location cannot be nil", shared.ErrConfiguration))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: logger cannot be nil", shared.ErrConfiguration))
	}

	return errs
}

// seriesKey identifies a series of the data file.
type seriesKey struct {
	symbol string
	period string
}

// FileSource serves market data from a json file. The file is an array of
// {"symbol", "period", "bars"} objects, bars are dated at their bucket end.
type FileSource struct {
	cfg    *FileSourceConfig
	series map[seriesKey][]shared.Bar
}

// Ensure the FileSource implements the DataSource interface.
var _ shared.DataSource = (*FileSource)(nil)

// loadMarketData loads the market data entries from the provided file path.
func loadMarketData(filepath string) ([]gjson.Result, error) {
	readb, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("reading market data from file with path '%s': %v", filepath, err)
	}

	if !gjson.ValidBytes(readb) {
		return nil, fmt.Errorf("market data file '%s' is not valid json", filepath)
	}

	return gjson.ParseBytes(readb).Array(), nil
}

// NewFileSource initializes a new file data source.
func NewFileSource(cfg *FileSourceConfig) (*FileSource, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	entries, err := loadMarketData(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading market data: %v", err)
	}

	src := &FileSource{
		cfg:    cfg,
		series: make(map[seriesKey][]shared.Bar, len(entries)),
	}

	for idx := range entries {
		symbol := entries[idx].Get("symbol").String()
		period, err := shared.ParsePeriod(entries[idx].Get("period").String())
		if err != nil {
			return nil, fmt.Errorf("parsing period of %s: %w", symbol, err)
		}

		bars, err := shared.ParseBars(entries[idx].Get("bars").Array(), cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("parsing bars of %s: %w", symbol, err)
		}

		slices.SortFunc(bars, func(a, b shared.Bar) int {
			return a.Date.Compare(b.Date)
		})

		key := seriesKey{symbol: symbol, period: period.String()}
		src.series[key] = append(src.series[key], bars...)
	}

	cfg.Logger.Info().Msgf("loaded %d series from %s", len(src.series), cfg.FilePath)

	return src, nil
}

// FetchInitial returns the most recent bars of a symbol.
func (s *FileSource) FetchInitial(_ context.Context, symbol string, period shared.Period, count int) ([]shared.Bar, error) {
	bars := s.series[seriesKey{symbol: symbol, period: period.String()}]
	if len(bars) == 0 {
		return nil, fmt.Errorf("no %s bars for %s: %w", period.String(), symbol, shared.ErrDataUnavailable)
	}

	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	return slices.Clone(bars), nil
}

// FetchMissing returns the bars ending at or after start for the provided symbols.
func (s *FileSource) FetchMissing(_ context.Context, symbols []string, period shared.Period, start time.Time, end time.Time) (map[string][]shared.Bar, error) {
	data := make(map[string][]shared.Bar, len(symbols))
	for _, symbol := range symbols {
		bars := window(s.series[seriesKey{symbol: symbol, period: period.String()}], start, end)
		if len(bars) == 0 {
			continue
		}

		data[symbol] = bars
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("no missing %s bars since %s: %w", period.String(),
			start.Format(shared.MinuteLayout), shared.ErrDataUnavailable)
	}

	return data, nil
}
