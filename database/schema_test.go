package database

import (
	"testing"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/peterldowns/testy/assert"
)

func TestLists(t *testing.T) {
	tests := []struct {
		name    string
		entries []string
		encoded string
	}{
		{name: "empty", entries: []string{}, encoded: ""},
		{name: "single", entries: []string{"1m"}, encoded: "1m"},
		{name: "multiple", entries: []string{"600000", "000001.SZ"}, encoded: "600000,000001.SZ"},
	}

	for _, test := range tests {
		assert.Equal(t, joinList(test.entries), test.encoded)
		assert.Equal(t, splitList(test.encoded), test.entries)
	}

	// Ensure surrounding whitespace is trimmed.
	assert.Equal(t, splitList("1m, 5m"), []string{"1m", "5m"})
}

func TestExtra(t *testing.T) {
	// Ensure empty parameters encode to an empty column.
	encoded, err := encodeExtra(nil)
	assert.NoError(t, err)
	assert.Equal(t, encoded, "")

	decoded, err := decodeExtra("")
	assert.NoError(t, err)
	assert.Equal(t, len(decoded), 0)

	// Ensure parameters survive an encoding round trip.
	encoded, err = encodeExtra(map[string]any{"price_type": "close", "slow": 30})
	assert.NoError(t, err)
	decoded, err = decodeExtra(encoded)
	assert.NoError(t, err)

	ctx := &shared.EvalContext{Extra: decoded}
	assert.Equal(t, ctx.ExtraString("price_type", ""), "close")
	assert.Equal(t, ctx.ExtraInt("slow", 0), 30)

	// Ensure malformed parameters fail to decode.
	_, err = decodeExtra("price_type: [close")
	assert.Error(t, err)
}

func TestBarsFromRows(t *testing.T) {
	loc := time.FixedZone("CST", 8*60*60)
	date := time.Date(2024, 3, 4, 9, 30, 0, 0, loc)

	// Ensure json decoded rows are converted to bars.
	rows := []map[string]any{
		{"date": float64(date.Unix()), "open": 10.0, "high": 10.5, "low": 9.5, "close": 10.2, "volume": float64(300)},
	}

	bars := barsFromRows(rows, loc)
	assert.Equal(t, len(bars), 1)
	assert.Equal(t, bars[0].Date, date)
	assert.Equal(t, bars[0].High, 10.5)
	assert.Equal(t, bars[0].Volume, float64(300))
}
