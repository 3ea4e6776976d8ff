package shared

import (
	"fmt"
	"time"
)

const (
	// MarketLocation is the default locale market hours are expressed in.
	MarketLocation = "Asia/Shanghai"
)

// MarketTime returns the current time in the provided market location. An empty name
// uses the default market location.
func MarketTime(name string) (time.Time, *time.Location, error) {
	if name == "" {
		name = MarketLocation
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("loading %s timezone: %w", name, err)
	}

	now := time.Now().In(loc)
	return now, loc, nil
}

// TruncateMinute drops the seconds of the provided time, the minimum addressable tick is
// one minute.
func TruncateMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}
