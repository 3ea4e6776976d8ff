package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/shopspring/decimal"
)

const (
	// mt5DateLayout is the date column layout of mt5 bar files.
	mt5DateLayout = "2006.01.02"
	// mt5TimeLayout is the time column layout of mt5 bar files.
	mt5TimeLayout = "15:04:05"
)

var mt5Header = []string{"<DATE>", "<TIME>", "<OPEN>", "<HIGH>", "<LOW>", "<CLOSE>"}

// DayReader defines the requirements for reading a symbol's bars of a day.
type DayReader interface {
	// Today returns the base bars of a symbol for the calendar day of the provided date.
	Today(code string, date time.Time) ([]shared.Bar, error)
}

// price formats the provided price with two decimals, halves are rounded away from zero.
func price(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// WriteMT5 writes the provided bars as a tab separated mt5 bar file. Bars are written with
// their bucket start time.
func WriteMT5(w io.Writer, bars []shared.Bar) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	err := cw.Write(mt5Header)
	if err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for idx := range bars {
		bar := &bars[idx]
		err := cw.Write([]string{
			bar.Date.Format(mt5DateLayout),
			bar.Date.Format(mt5TimeLayout),
			price(bar.Open),
			price(bar.High),
			price(bar.Low),
			price(bar.Close),
		})
		if err != nil {
			return fmt.Errorf("writing bar %d: %w", idx, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// FileName returns the export file name of a symbol's day.
func FileName(code string, date time.Time) string {
	return fmt.Sprintf("%s_%s.csv", code, date.Format(shared.DayLayout))
}

// ExportDay writes the base bars of a symbol's day to an mt5 bar file in the provided
// directory and returns its path. A day without bars is reported as not found.
func ExportDay(reader DayReader, code string, date time.Time, dir string) (string, error) {
	bars, err := reader.Today(code, date)
	if err != nil {
		return "", err
	}

	if len(bars) == 0 {
		return "", fmt.Errorf("no bars for %s on %s: %w", code, date.Format(shared.DayLayout), shared.ErrNotFound)
	}

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(dir, FileName(code, date))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}

	err = WriteMT5(f, bars)
	if err != nil {
		f.Close()
		return "", fmt.Errorf("exporting %s: %w", code, err)
	}

	err = f.Close()
	if err != nil {
		return "", fmt.Errorf("closing export file: %w", err)
	}

	return path, nil
}
