package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/dnldd/alarm/shared"
	"gopkg.in/yaml.v3"
)

const (
	// SQL statements.
	createSymbolTableSQL  = "CREATE TABLE IF NOT EXISTS symbol (code TEXT PRIMARY KEY, name TEXT NOT NULL DEFAULT '')"
	createKlineTableSQL   = "CREATE TABLE IF NOT EXISTS kline (symbol TEXT NOT NULL, period TEXT NOT NULL, date INTEGER NOT NULL, open REAL, high REAL, low REAL, close REAL, volume REAL, PRIMARY KEY (symbol, period, date))"
	createProgramTableSQL = "CREATE TABLE IF NOT EXISTS alarm_program (id INTEGER PRIMARY KEY AUTOINCREMENT, algorithm TEXT NOT NULL, symbols TEXT NOT NULL, periods TEXT NOT NULL, extra TEXT NOT NULL DEFAULT '', remark TEXT NOT NULL DEFAULT '', UNIQUE (algorithm, symbols, periods, extra))"
	createMessageTableSQL = "CREATE TABLE IF NOT EXISTS alarm_message (date INTEGER NOT NULL, symbol TEXT NOT NULL, period TEXT NOT NULL, message TEXT NOT NULL, tick TEXT NOT NULL DEFAULT '', createdon INTEGER NOT NULL, PRIMARY KEY (date, symbol, period))"

	upsertSymbolSQL    = "INSERT INTO symbol(code, name) VALUES(?,?) ON CONFLICT(code) DO UPDATE SET name = excluded.name"
	findSymbolsSQL     = "SELECT code, name FROM symbol ORDER BY code"
	persistKlineSQL    = "INSERT OR IGNORE INTO kline(symbol, period, date, open, high, low, close, volume) VALUES(?,?,?,?,?,?,?,?)"
	findKlinesSQL      = "SELECT date, open, high, low, close, volume FROM kline WHERE symbol = ? AND period = ? ORDER BY date"
	persistProgramSQL  = "INSERT OR IGNORE INTO alarm_program(algorithm, symbols, periods, extra, remark) VALUES(?,?,?,?,?)"
	findProgramsSQL    = "SELECT algorithm, symbols, periods, extra, remark FROM alarm_program ORDER BY id"
	persistMessageSQL  = "INSERT OR IGNORE INTO alarm_message(date, symbol, period, message, tick, createdon) VALUES(?,?,?,?,?,?)"
	findMessageKeysSQL = "SELECT date, symbol, period FROM alarm_message"
)

// schema lists the statements creating every table.
var schema = []string{
	createSymbolTableSQL,
	createKlineTableSQL,
	createProgramTableSQL,
	createMessageTableSQL,
}

// listSeparator separates the entries of list columns.
const listSeparator = ","

// joinList encodes the provided list column.
func joinList(entries []string) string {
	return strings.Join(entries, listSeparator)
}

// splitList decodes the provided list column.
func splitList(s string) []string {
	if s == "" {
		return []string{}
	}

	entries := strings.Split(s, listSeparator)
	for idx := range entries {
		entries[idx] = strings.TrimSpace(entries[idx])
	}

	return entries
}

// encodeExtra encodes the extra parameters of an alarm program.
func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "", nil
	}

	b, err := yaml.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("encoding extra parameters: %w", err)
	}

	return string(b), nil
}

// decodeExtra decodes the extra parameters of an alarm program.
func decodeExtra(s string) (map[string]any, error) {
	extra := make(map[string]any)
	if s == "" {
		return extra, nil
	}

	err := yaml.Unmarshal([]byte(s), &extra)
	if err != nil {
		return nil, fmt.Errorf("decoding extra parameters: %w", err)
	}

	return extra, nil
}

// klineParams returns the positional parameters persisting the provided bar.
func klineParams(symbol string, period shared.Period, bar *shared.Bar) []any {
	return []any{symbol, period.String(), bar.Date.Unix(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume}
}

// messageParams returns the positional parameters persisting the provided alert event.
func messageParams(event *shared.AlertEvent, now time.Time) []any {
	return []any{event.Date.Unix(), event.Symbol, event.Period, event.Message, event.TickID, now.Unix()}
}

// programParams returns the positional parameters persisting the provided program.
func programParams(program *shared.AlarmProgramConfig) ([]any, error) {
	extra, err := encodeExtra(program.Extra)
	if err != nil {
		return nil, err
	}

	return []any{program.Algorithm, joinList(program.Symbols), joinList(program.Periods), extra, program.Remark}, nil
}

// newProgram decodes an alarm program from its columns.
func newProgram(algorithm string, symbols string, periods string, extra string, remark string) (shared.AlarmProgramConfig, error) {
	params, err := decodeExtra(extra)
	if err != nil {
		return shared.AlarmProgramConfig{}, fmt.Errorf("program %s: %w", algorithm, err)
	}

	return shared.AlarmProgramConfig{
		Algorithm: algorithm,
		Symbols:   splitList(symbols),
		Periods:   splitList(periods),
		Extra:     params,
		Remark:    remark,
	}, nil
}
