package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dnldd/alarm/shared"
	"github.com/peterldowns/testy/assert"
)

func TestReadProgramsFile(t *testing.T) {
	// Ensure the seed file is parsed.
	symbols, programs, err := ReadProgramsFile("testdata/programs.yaml")
	assert.NoError(t, err)
	assert.Equal(t, symbols, []shared.Symbol{
		{Code: "600000", Name: "Pudong Development Bank"},
		{Code: "000001", Name: "Ping An Bank"},
	})
	assert.Equal(t, len(programs), 2)

	first := programs[0]
	assert.Equal(t, first.Algorithm, "macd_cross")
	assert.Equal(t, first.Symbols, []string{"600000", "000001"})
	assert.Equal(t, first.Periods, []string{"1m", "5m"})
	assert.Equal(t, first.Remark, "intraday crossings")

	ctx := &shared.EvalContext{Extra: first.Extra}
	assert.Equal(t, ctx.ExtraString("price_type", "open"), "close")
	assert.Equal(t, ctx.ExtraInt("fast", 0), 12)

	second := programs[1]
	assert.Equal(t, second.Extra["period_long"], any("30m"))

	// Ensure a missing file fails.
	_, _, err = ReadProgramsFile("testdata/missing.yaml")
	assert.Error(t, err)

	// Ensure programs without an algorithm are configuration errors.
	path := filepath.Join(t.TempDir(), "programs.yaml")
	err = os.WriteFile(path, []byte("programs:\n  - symbols: [\"600000\"]\n    periods: [\"1m\"]\n"), 0o600)
	assert.NoError(t, err)
	_, _, err = ReadProgramsFile(path)
	assert.True(t, errors.Is(err, shared.ErrConfiguration))

	// Ensure malformed yaml is a configuration error.
	err = os.WriteFile(path, []byte("programs: [\n"), 0o600)
	assert.NoError(t, err)
	_, _, err = ReadProgramsFile(path)
	assert.True(t, errors.Is(err, shared.ErrConfiguration))
}
