package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/google/go-cmp/cmp"
	"github.com/peterldowns/testy/assert"
)

var testLoc = time.FixedZone("CST", 8*60*60)

type stubReader struct {
	bars map[string][]shared.Bar
}

func (r *stubReader) Today(code string, _ time.Time) ([]shared.Bar, error) {
	bars, ok := r.bars[code]
	if !ok {
		return nil, fmt.Errorf("no market found for %s: %w", code, shared.ErrNotFound)
	}

	return bars, nil
}

func testBars() []shared.Bar {
	start := time.Date(2020, 10, 14, 9, 30, 0, 0, testLoc)
	return []shared.Bar{
		{Date: start, Open: 4830.4575, High: 4830.4575, Low: 4819.1404, Close: 4819.3108},
		{Date: start.Add(time.Minute), Open: 4816.8566, High: 4819.1151, Low: 4816.2843, Close: 4819.1151},
	}
}

const wantMT5 = "<DATE>\t<TIME>\t<OPEN>\t<HIGH>\t<LOW>\t<CLOSE>\n" +
	"2020.10.14\t09:30:00\t4830.46\t4830.46\t4819.14\t4819.31\n" +
	"2020.10.14\t09:31:00\t4816.86\t4819.12\t4816.28\t4819.12\n"

func TestWriteMT5(t *testing.T) {
	// Ensure bars are written tab separated with two decimals.
	var buf bytes.Buffer
	err := WriteMT5(&buf, testBars())
	assert.NoError(t, err)
	if diff := cmp.Diff(buf.String(), wantMT5); diff != "" {
		t.Fatalf("unexpected mt5 output (-got +want):\n%s", diff)
	}

	// Ensure an empty series writes only the header.
	buf.Reset()
	err = WriteMT5(&buf, nil)
	assert.NoError(t, err)
	assert.Equal(t, buf.String(), "<DATE>\t<TIME>\t<OPEN>\t<HIGH>\t<LOW>\t<CLOSE>\n")
}

func TestPrice(t *testing.T) {
	tests := []struct {
		value float64
		want  string
	}{
		{value: 0, want: "0.00"},
		{value: 10, want: "10.00"},
		{value: 2.675, want: "2.68"},
		{value: 1.005, want: "1.01"},
		{value: 4819.1151, want: "4819.12"},
		{value: -3.145, want: "-3.15"},
	}

	// Ensure prices round half away from zero on their decimal value.
	for _, test := range tests {
		assert.Equal(t, price(test.value), test.want)
	}
}

func TestExportDay(t *testing.T) {
	reader := &stubReader{bars: map[string][]shared.Bar{
		"600000": testBars(),
		"000001": {},
	}}
	date := time.Date(2020, 10, 14, 0, 0, 0, 0, testLoc)
	dir := filepath.Join(t.TempDir(), "export")

	// Ensure the day is exported to the symbol's dated file.
	path, err := ExportDay(reader, "600000", date, dir)
	assert.NoError(t, err)
	assert.Equal(t, path, filepath.Join(dir, "600000_2020-10-14.csv"))

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, string(data), wantMT5)

	// Ensure a day without bars is not found.
	_, err = ExportDay(reader, "000001", date, dir)
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	// Ensure unknown symbols are not found.
	_, err = ExportDay(reader, "unknown", date, dir)
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}
