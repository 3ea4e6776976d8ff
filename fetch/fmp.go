package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	baseURL = "https://financialmodelingprep.com/stable"
	// defaultRequestTimeout is the default timeout of a single vendor request.
	defaultRequestTimeout = time.Second * 5
)

// FMPConfig represents the configuration for the FMP client.
type FMPConfig struct {
	// APIkey is the FMP API Key.
	APIKey string
	// BaseURL overrides the FMP api url.
	BaseURL string
	// Location is the location vendor dates are expressed in.
	Location *time.Location
	// Timeout is the timeout of a single request.
	Timeout time.Duration
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *FMPConfig) Validate() error {
	var errs error

	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: fmp api key cannot be empty", shared.ErrConfiguration))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: fmp location cannot be nil", shared.ErrConfiguration))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: logger cannot be nil", shared.ErrConfiguration))
	}

	return errs
}

// FMPClient represents the Financial Modeling Preparation (FMP) API client.
type FMPClient struct {
	cfg    *FMPConfig
	httpc  *http.Client
	buf    *bytes.Buffer
	bufMtx sync.Mutex
}

// Ensure the FMPClient implements the DataSource interface.
var _ shared.DataSource = (*FMPClient)(nil)

// NewFMPClient instantiates a new FMP client.
func NewFMPClient(cfg *FMPConfig) (*FMPClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = baseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}

	return &FMPClient{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		buf:   bytes.NewBuffer(make([]byte, 0, 512)),
	}, nil
}

// formURL creates full urls including paramters for the api.
func (c *FMPClient) formURL(path string, params string) string {
	c.bufMtx.Lock()
	defer c.bufMtx.Unlock()

	c.buf.WriteString(c.cfg.BaseURL)
	c.buf.WriteString(path)
	c.buf.WriteString("?")
	c.buf.WriteString(params)
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// chartPath returns the historical chart path of the provided period.
func chartPath(period shared.Period) (string, error) {
	switch period.String() {
	case "1m":
		return "/historical-chart/1min", nil
	case "5m":
		return "/historical-chart/5min", nil
	case "15m":
		return "/historical-chart/15min", nil
	case "30m":
		return "/historical-chart/30min", nil
	case "1h":
		return "/historical-chart/1hour", nil
	case "4h":
		return "/historical-chart/4hour", nil
	default:
		return "", fmt.Errorf("%w: unsupported fmp period %s", shared.ErrConfiguration, period.String())
	}
}

// fetchChart fetches the historical chart of the provided symbol. FMP dates bars at their
// bucket start and lists them newest first, the returned bars are ascending and dated at
// their bucket end.
func (c *FMPClient) fetchChart(ctx context.Context, symbol string, period shared.Period, start time.Time, end time.Time) ([]shared.Bar, error) {
	path, err := chartPath(period)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Add("symbol", symbol)
	params.Add("apikey", c.cfg.APIKey)
	if !start.IsZero() {
		params.Add("from", start.In(c.cfg.Location).Format(shared.DayLayout))
	}
	if !end.IsZero() {
		params.Add("to", end.In(c.cfg.Location).Format(shared.DayLayout))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.formURL(path, params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", symbol, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching intraday historical data (%s) for %s: %w: %v",
			period.String(), symbol, shared.ErrDataUnavailable, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching intraday historical data (%s) for %s: %w: status %d: %s",
			period.String(), symbol, shared.ErrDataUnavailable, resp.StatusCode, gjson.GetBytes(body, "Error Message").String())
	}

	bars, err := shared.ParseBars(gjson.ParseBytes(body).Array(), c.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("parsing %s bars for %s: %w", period.String(), symbol, err)
	}

	slices.SortFunc(bars, func(a, b shared.Bar) int {
		return a.Date.Compare(b.Date)
	})

	return shared.ShiftBars(bars, period.Width()), nil
}

// FetchInitial fetches the most recent bars of a symbol.
func (c *FMPClient) FetchInitial(ctx context.Context, symbol string, period shared.Period, count int) ([]shared.Bar, error) {
	bars, err := c.fetchChart(ctx, symbol, period, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no %s bars for %s: %w", period.String(), symbol, shared.ErrDataUnavailable)
	}

	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}

	return bars, nil
}

// FetchMissing fetches bars ending at or after start for the provided symbols. Symbols
// that fail are logged and left out of the result.
func (c *FMPClient) FetchMissing(ctx context.Context, symbols []string, period shared.Period, start time.Time, end time.Time) (map[string][]shared.Bar, error) {
	data := make(map[string][]shared.Bar, len(symbols))
	for _, symbol := range symbols {
		bars, err := c.fetchChart(ctx, symbol, period, start, end)
		if err != nil {
			c.cfg.Logger.Error().Msgf("fetching missing %s bars for %s: %v", period.String(), symbol, err)
			continue
		}

		bars = window(bars, start, end)
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

// window returns the bars dated within [start, end], a zero end is unbounded.
func window(bars []shared.Bar, start time.Time, end time.Time) []shared.Bar {
	filtered := make([]shared.Bar, 0, len(bars))
	for idx := range bars {
		if bars[idx].Date.Before(start) {
			continue
		}
		if !end.IsZero() && bars[idx].Date.After(end) {
			continue
		}

		filtered = append(filtered, bars[idx])
	}

	return filtered
}
