package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/alarm/database"
	"github.com/dnldd/alarm/detector"
	"github.com/dnldd/alarm/engine"
	"github.com/dnldd/alarm/shared"
	"github.com/peterldowns/testy/assert"
	"github.com/rs/zerolog"
)

var testLoc = time.FixedZone("CST", 8*60*60)

const testPrograms = `symbols:
  - code: "600000"
    name: Pudong Development Bank

programs:
  - algorithm: macd_cross
    symbols: ["600000"]
    periods: ["1m"]
    remark: intraday
  - algorithm: macd_trend_cross
    symbols: ["600000", "000001"]
    periods: ["1m"]
    extra:
      period_long: 30m
`

// writeBars writes a file source data file of one minute bars dated at their bucket end.
// Prices fall, rise and fall again so the macd histogram changes sign twice.
func writeBars(t *testing.T, path string) {
	t.Helper()

	start := time.Date(2024, 3, 4, 9, 31, 0, 0, testLoc)

	var b strings.Builder
	b.WriteString(`[{"symbol": "600000", "period": "1m", "bars": [`)
	v := float64(100)
	for idx := range 180 {
		switch {
		case idx == 0:
		case idx < 60:
			v--
		case idx < 120:
			v++
		default:
			v--
		}

		if idx > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"date": "%s", "open": %.2f, "high": %.2f, "low": %.2f, "close": %.2f, "volume": 100}`,
			start.Add(time.Minute*time.Duration(idx)).Format(shared.DateLayout), v, v+1, v-1, v)
	}
	b.WriteString(`]}]`)

	err := os.WriteFile(path, []byte(b.String()), 0o600)
	assert.NoError(t, err)
}

func newTestStore(t *testing.T) *database.SQLite {
	t.Helper()

	logger := zerolog.Nop()
	db, err := database.NewSQLite(context.Background(), &database.SQLiteConfig{
		Path:     filepath.Join(t.TempDir(), "alarm.db"),
		Location: testLoc,
		Logger:   &logger,
	})
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db
}

func testConfig(t *testing.T) *Config {
	t.Helper()

	dir := t.TempDir()
	programs := filepath.Join(dir, "programs.yaml")
	err := os.WriteFile(programs, []byte(testPrograms), 0o600)
	assert.NoError(t, err)

	bars := filepath.Join(dir, "bars.json")
	writeBars(t, bars)

	cfg := &Config{
		Source:           sourceFile,
		DataFilepath:     bars,
		ProgramsFilepath: programs,
		ExportDir:        filepath.Join(dir, "export"),
	}
	cfg.setDefaults()

	return cfg
}

func loadTestPrograms(t *testing.T) ([]*engine.Program, []shared.Symbol) {
	t.Helper()

	cfg := testConfig(t)
	db := newTestStore(t)
	cfgs, known, err := loadProgramConfigs(context.Background(), cfg, db)
	assert.NoError(t, err)

	reg := engine.NewRegistry()
	assert.NoError(t, detector.Register(reg))

	programs, err := engine.LoadPrograms(cfgs, reg)
	assert.NoError(t, err)

	return programs, known
}

func TestLoadProgramConfigs(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	db := newTestStore(t)

	// Ensure the seed file is persisted and read back.
	programs, symbols, err := loadProgramConfigs(ctx, cfg, db)
	assert.NoError(t, err)
	assert.Equal(t, len(programs), 2)
	assert.Equal(t, symbols, []shared.Symbol{{Code: "600000", Name: "Pudong Development Bank"}})

	// Ensure programs are read from storage without a seed file.
	cfg.ProgramsFilepath = ""
	programs, _, err = loadProgramConfigs(ctx, cfg, db)
	assert.NoError(t, err)
	assert.Equal(t, len(programs), 2)

	// Ensure a store without programs is a configuration error.
	_, _, err = loadProgramConfigs(ctx, cfg, newTestStore(t))
	assert.True(t, err != nil && strings.Contains(err.Error(), "no alarm programs configured"))
}

func TestTrackedSymbols(t *testing.T) {
	programs, known := loadTestPrograms(t)

	// Ensure symbols are listed once in order of appearance with known names.
	symbols := trackedSymbols(programs, known)
	assert.Equal(t, symbols, []shared.Symbol{
		{Code: "600000", Name: "Pudong Development Bank"},
		{Code: "000001"},
	})
}

func TestTrackedPeriods(t *testing.T) {
	programs, _ := loadTestPrograms(t)

	// Ensure multi-period programs add their extra periods.
	periods, err := trackedPeriods(programs)
	assert.NoError(t, err)

	one := shared.MustParsePeriod("1m")
	thirty := shared.MustParsePeriod("30m")
	assert.Equal(t, periods["600000"], []shared.Period{one, one, thirty})
	assert.Equal(t, periods["000001"], []shared.Period{one, thirty})
}

func TestWire(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	logger := zerolog.Nop()

	a, err := wire(ctx, cfg, testLoc, newTestStore(t), &logger)
	assert.NoError(t, err)

	// Ensure the bootstrap tick loads the series and persists historical crossings.
	now := time.Date(2024, 3, 4, 13, 0, 3, 0, testLoc)
	events, err := a.alarm.Tick(ctx, now)
	assert.NoError(t, err)
	assert.GreaterThan(t, len(events), 0)

	keys, err := a.store.ReadAlertKeys(ctx)
	assert.NoError(t, err)
	assert.Equal(t, len(keys), len(events))

	// Ensure the next tick without new data emits nothing.
	events, err = a.alarm.Tick(ctx, now.Add(time.Minute))
	assert.NoError(t, err)
	assert.Equal(t, len(events), 0)

	// Ensure the tracked day is exported.
	err = a.exportDay(ctx, now)
	assert.Error(t, err)

	path := filepath.Join(cfg.ExportDir, "600000_2024-03-04.csv")
	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, strings.Count(string(data), "\n"), 181)
}
