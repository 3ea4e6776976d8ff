package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteConfig is the configuration for the local sqlite store.
type SQLiteConfig struct {
	// Path is the sqlite database file path.
	Path string
	// Location is the location dates are read into.
	Location *time.Location
	// Logger is the database logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *SQLiteConfig) Validate() error {
	var errs error

	if cfg.Path == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: sqlite path cannot be empty", shared.ErrConfiguration))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: sqlite location cannot be nil", shared.ErrConfiguration))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: logger cannot be nil", shared.ErrConfiguration))
	}

	return errs
}

// SQLite represents a local sqlite store.
type SQLite struct {
	cfg   *SQLiteConfig
	db    *sql.DB
	dbMtx sync.Mutex
}

// Ensure the sqlite store implements the Storer and Seeder interfaces.
var _ shared.Storer = (*SQLite)(nil)
var _ shared.Seeder = (*SQLite)(nil)

// NewSQLite opens (or creates) the sqlite database and bootstraps its schema.
func NewSQLite(ctx context.Context, cfg *SQLiteConfig) (*SQLite, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	_, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting wal mode: %w", err)
	}

	for _, stmt := range schema {
		_, err := db.ExecContext(ctx, stmt)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("bootstrapping sqlite database: %w", err)
		}
	}

	cfg.Logger.Info().Msgf("sqlite store opened: %s", cfg.Path)

	return &SQLite{
		cfg: cfg,
		db:  db,
	}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// executeBatch runs the provided statement once per parameter set in a transaction.
func (s *SQLite) executeBatch(ctx context.Context, stmt string, params [][]any) error {
	if len(params) == 0 {
		return nil
	}

	s.dbMtx.Lock()
	defer s.dbMtx.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	prepared, err := tx.PrepareContext(ctx, stmt)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("preparing statement: %w", err)
	}

	defer prepared.Close()

	for idx := range params {
		_, err := prepared.ExecContext(ctx, params[idx]...)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing statement %d: %w", idx, err)
		}
	}

	return tx.Commit()
}

// ReadSymbols returns the known symbols.
func (s *SQLite) ReadSymbols(ctx context.Context) ([]shared.Symbol, error) {
	rows, err := s.db.QueryContext(ctx, findSymbolsSQL)
	if err != nil {
		return nil, fmt.Errorf("reading symbols: %w", err)
	}

	defer rows.Close()

	symbols := []shared.Symbol{}
	for rows.Next() {
		var symbol shared.Symbol
		err := rows.Scan(&symbol.Code, &symbol.Name)
		if err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}

		symbols = append(symbols, symbol)
	}

	return symbols, rows.Err()
}

// SaveSymbols persists the provided symbols.
func (s *SQLite) SaveSymbols(ctx context.Context, symbols []shared.Symbol) error {
	params := make([][]any, 0, len(symbols))
	for idx := range symbols {
		params = append(params, []any{symbols[idx].Code, symbols[idx].Name})
	}

	err := s.executeBatch(ctx, upsertSymbolSQL, params)
	if err != nil {
		return fmt.Errorf("%w: saving symbols: %v", shared.ErrPersistence, err)
	}

	return nil
}

// ReadSeries returns the persisted series of a symbol and period.
func (s *SQLite) ReadSeries(ctx context.Context, symbol string, period shared.Period) ([]shared.Bar, error) {
	rows, err := s.db.QueryContext(ctx, findKlinesSQL, symbol, period.String())
	if err != nil {
		return nil, fmt.Errorf("reading %s series for %s: %w", period.String(), symbol, err)
	}

	defer rows.Close()

	bars := []shared.Bar{}
	for rows.Next() {
		var bar shared.Bar
		var date int64
		err := rows.Scan(&date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume)
		if err != nil {
			return nil, fmt.Errorf("scanning %s bar for %s: %w", period.String(), symbol, err)
		}

		bar.Date = time.Unix(date, 0).In(s.cfg.Location)
		bars = append(bars, bar)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("reading %s series for %s: %w", period.String(), symbol, err)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no %s series for %s: %w", period.String(), symbol, shared.ErrNotFound)
	}

	return bars, nil
}

// AppendSeries persists the provided bars of a symbol and period. Bars already persisted
// are ignored.
func (s *SQLite) AppendSeries(ctx context.Context, symbol string, period shared.Period, bars []shared.Bar) error {
	params := make([][]any, 0, len(bars))
	for idx := range bars {
		params = append(params, klineParams(symbol, period, &bars[idx]))
	}

	err := s.executeBatch(ctx, persistKlineSQL, params)
	if err != nil {
		return fmt.Errorf("%w: appending %s series for %s: %v", shared.ErrPersistence, period.String(), symbol, err)
	}

	return nil
}

// ReadAlarmPrograms returns the configured alarm programs.
func (s *SQLite) ReadAlarmPrograms(ctx context.Context) ([]shared.AlarmProgramConfig, error) {
	rows, err := s.db.QueryContext(ctx, findProgramsSQL)
	if err != nil {
		return nil, fmt.Errorf("reading alarm programs: %w", err)
	}

	defer rows.Close()

	programs := []shared.AlarmProgramConfig{}
	for rows.Next() {
		var algorithm, symbols, periods, extra, remark string
		err := rows.Scan(&algorithm, &symbols, &periods, &extra, &remark)
		if err != nil {
			return nil, fmt.Errorf("scanning alarm program: %w", err)
		}

		program, err := newProgram(algorithm, symbols, periods, extra, remark)
		if err != nil {
			return nil, err
		}

		programs = append(programs, program)
	}

	return programs, rows.Err()
}

// SaveAlarmPrograms persists the provided alarm programs.
func (s *SQLite) SaveAlarmPrograms(ctx context.Context, programs []shared.AlarmProgramConfig) error {
	params := make([][]any, 0, len(programs))
	for idx := range programs {
		p, err := programParams(&programs[idx])
		if err != nil {
			return err
		}

		params = append(params, p)
	}

	err := s.executeBatch(ctx, persistProgramSQL, params)
	if err != nil {
		return fmt.Errorf("%w: saving alarm programs: %v", shared.ErrPersistence, err)
	}

	return nil
}

// ReadAlertKeys returns the natural keys of every persisted alert event.
func (s *SQLite) ReadAlertKeys(ctx context.Context) (map[shared.AlertKey]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, findMessageKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("reading alert keys: %w", err)
	}

	defer rows.Close()

	keys := make(map[shared.AlertKey]struct{})
	for rows.Next() {
		var key shared.AlertKey
		err := rows.Scan(&key.Unix, &key.Symbol, &key.Period)
		if err != nil {
			return nil, fmt.Errorf("scanning alert key: %w", err)
		}

		keys[key] = struct{}{}
	}

	return keys, rows.Err()
}

// AppendAlertEvents persists the provided alert events. Events already persisted are ignored.
func (s *SQLite) AppendAlertEvents(ctx context.Context, events []shared.AlertEvent) error {
	now := time.Now()
	params := make([][]any, 0, len(events))
	for idx := range events {
		params = append(params, messageParams(&events[idx], now))
	}

	err := s.executeBatch(ctx, persistMessageSQL, params)
	if err != nil {
		return fmt.Errorf("%w: appending %d alert events: %v", shared.ErrPersistence, len(events), err)
	}

	return nil
}
