package database

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/alarm/shared"
	rqlitehttp "github.com/rqlite/rqlite-go-http"
	"github.com/rs/zerolog"
)

// DatabaseConfig is the configuration for the database.
type DatabaseConfig struct {
	// Endpoint represents the database connection endpoint.
	Endpoint string
	// User is the database user.
	User string
	// Pass is the database user pass.
	Pass string
	// Location is the location dates are read into.
	Location *time.Location
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *DatabaseConfig) Validate() error {
	var errs error

	if cfg.Endpoint == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: database endpoint cannot be empty", shared.ErrConfiguration))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: database location cannot be nil", shared.ErrConfiguration))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: logger cannot be nil", shared.ErrConfiguration))
	}

	return errs
}

// Database represents the rqlite database connection.
type Database struct {
	cfg    *DatabaseConfig
	client *rqlitehttp.Client
}

// Ensure the database implements the Storer and Seeder interfaces.
var _ shared.Storer = (*Database)(nil)
var _ shared.Seeder = (*Database)(nil)

// NewDatabase initializes a new database connection.
func NewDatabase(ctx context.Context, cfg *DatabaseConfig) (*Database, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	httpc := &http.Client{Timeout: time.Second * 5}
	client, err := rqlitehttp.NewClient(cfg.Endpoint, httpc)
	if err != nil {
		return nil, fmt.Errorf("creating database client: %w", err)
	}

	if cfg.User != "" {
		client.SetBasicAuth(cfg.User, cfg.Pass)
	}

	db := &Database{
		cfg:    cfg,
		client: client,
	}

	err = db.bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrapping database: %w", err)
	}

	return db, nil
}

// bootstrap initializes the database.
func (db *Database) bootstrap(ctx context.Context) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(schema))
	for _, sql := range schema {
		stmts = append(stmts, &rqlitehttp.SQLStatement{SQL: sql})
	}

	return db.execute(ctx, stmts)
}

// execute runs the provided statements in a transaction.
func (db *Database) execute(ctx context.Context, stmts rqlitehttp.SQLStatements) error {
	if len(stmts) == 0 {
		return nil
	}

	resp, err := db.client.Execute(ctx, stmts, &rqlitehttp.ExecuteOptions{
		Transaction: true,
		Timings:     true,
	})
	if err != nil {
		return err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return fmt.Errorf("executing statement %d: %s", idx, errStr)
	}

	return nil
}

// query runs the provided query and returns its rows keyed by column.
func (db *Database) query(ctx context.Context, sql string, params ...any) ([]map[string]any, error) {
	resp, err := db.client.Query(ctx, rqlitehttp.SQLStatements{
		{SQL: sql, PositionalParams: params},
	}, &rqlitehttp.QueryOptions{
		Associative: true,
		Timings:     true,
	})
	if err != nil {
		return nil, err
	}

	has, idx, errStr := resp.HasError()
	if has {
		return nil, fmt.Errorf("querying statement %d: %s", idx, errStr)
	}

	results := resp.GetQueryResultsAssoc()
	if len(results) == 0 {
		return nil, nil
	}

	return results[0].Rows, nil
}

// asFloat reads a numeric column value.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// asString reads a text column value.
func asString(v any) string {
	s, _ := v.(string)
	return s
}

// barsFromRows decodes bars from the provided kline rows.
func barsFromRows(rows []map[string]any, loc *time.Location) []shared.Bar {
	bars := make([]shared.Bar, 0, len(rows))
	for _, row := range rows {
		bars = append(bars, shared.Bar{
			Date:   time.Unix(int64(asFloat(row["date"])), 0).In(loc),
			Open:   asFloat(row["open"]),
			High:   asFloat(row["high"]),
			Low:    asFloat(row["low"]),
			Close:  asFloat(row["close"]),
			Volume: asFloat(row["volume"]),
		})
	}

	return bars
}

// ReadSymbols returns the known symbols.
func (db *Database) ReadSymbols(ctx context.Context) ([]shared.Symbol, error) {
	rows, err := db.query(ctx, findSymbolsSQL)
	if err != nil {
		return nil, fmt.Errorf("reading symbols: %w", err)
	}

	symbols := make([]shared.Symbol, 0, len(rows))
	for _, row := range rows {
		symbols = append(symbols, shared.Symbol{
			Code: asString(row["code"]),
			Name: asString(row["name"]),
		})
	}

	return symbols, nil
}

// SaveSymbols persists the provided symbols.
func (db *Database) SaveSymbols(ctx context.Context, symbols []shared.Symbol) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(symbols))
	for idx := range symbols {
		stmts = append(stmts, &rqlitehttp.SQLStatement{
			SQL:              upsertSymbolSQL,
			PositionalParams: []any{symbols[idx].Code, symbols[idx].Name},
		})
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		return fmt.Errorf("%w: saving symbols: %v", shared.ErrPersistence, err)
	}

	return nil
}

// ReadSeries returns the persisted series of a symbol and period.
func (db *Database) ReadSeries(ctx context.Context, symbol string, period shared.Period) ([]shared.Bar, error) {
	rows, err := db.query(ctx, findKlinesSQL, symbol, period.String())
	if err != nil {
		return nil, fmt.Errorf("reading %s series for %s: %w", period.String(), symbol, err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no %s series for %s: %w", period.String(), symbol, shared.ErrNotFound)
	}

	return barsFromRows(rows, db.cfg.Location), nil
}

// AppendSeries persists the provided bars of a symbol and period. Bars already persisted
// are ignored.
func (db *Database) AppendSeries(ctx context.Context, symbol string, period shared.Period, bars []shared.Bar) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(bars))
	for idx := range bars {
		stmts = append(stmts, &rqlitehttp.SQLStatement{
			SQL:              persistKlineSQL,
			PositionalParams: klineParams(symbol, period, &bars[idx]),
		})
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		return fmt.Errorf("%w: appending %s series for %s: %v", shared.ErrPersistence, period.String(), symbol, err)
	}

	return nil
}

// ReadAlarmPrograms returns the configured alarm programs.
func (db *Database) ReadAlarmPrograms(ctx context.Context) ([]shared.AlarmProgramConfig, error) {
	rows, err := db.query(ctx, findProgramsSQL)
	if err != nil {
		return nil, fmt.Errorf("reading alarm programs: %w", err)
	}

	programs := make([]shared.AlarmProgramConfig, 0, len(rows))
	for _, row := range rows {
		program, err := newProgram(asString(row["algorithm"]), asString(row["symbols"]),
			asString(row["periods"]), asString(row["extra"]), asString(row["remark"]))
		if err != nil {
			db.cfg.Logger.Error().Msgf("unexpected alarm program row: %s", spew.Sdump(row))
			return nil, err
		}

		programs = append(programs, program)
	}

	return programs, nil
}

// SaveAlarmPrograms persists the provided alarm programs.
func (db *Database) SaveAlarmPrograms(ctx context.Context, programs []shared.AlarmProgramConfig) error {
	stmts := make(rqlitehttp.SQLStatements, 0, len(programs))
	for idx := range programs {
		params, err := programParams(&programs[idx])
		if err != nil {
			return err
		}

		stmts = append(stmts, &rqlitehttp.SQLStatement{
			SQL:              persistProgramSQL,
			PositionalParams: params,
		})
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		return fmt.Errorf("%w: saving alarm programs: %v", shared.ErrPersistence, err)
	}

	return nil
}

// ReadAlertKeys returns the natural keys of every persisted alert event.
func (db *Database) ReadAlertKeys(ctx context.Context) (map[shared.AlertKey]struct{}, error) {
	rows, err := db.query(ctx, findMessageKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("reading alert keys: %w", err)
	}

	keys := make(map[shared.AlertKey]struct{}, len(rows))
	for _, row := range rows {
		keys[shared.AlertKey{
			Symbol: asString(row["symbol"]),
			Period: asString(row["period"]),
			Unix:   int64(asFloat(row["date"])),
		}] = struct{}{}
	}

	return keys, nil
}

// AppendAlertEvents persists the provided alert events. Events already persisted are ignored.
func (db *Database) AppendAlertEvents(ctx context.Context, events []shared.AlertEvent) error {
	now := time.Now()
	stmts := make(rqlitehttp.SQLStatements, 0, len(events))
	for idx := range events {
		stmts = append(stmts, &rqlitehttp.SQLStatement{
			SQL:              persistMessageSQL,
			PositionalParams: messageParams(&events[idx], now),
		})
	}

	err := db.execute(ctx, stmts)
	if err != nil {
		return fmt.Errorf("%w: appending %d alert events: %v", shared.ErrPersistence, len(events), err)
	}

	return nil
}
