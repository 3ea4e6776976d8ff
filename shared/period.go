package shared

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	// SessionTimeLayout is the format layout for parsing session times in a day.
	SessionTimeLayout = "15:04"
	// DateLayout is the format layout for parsing dates.
	DateLayout = "2006-01-02 15:04:05"
	// MinuteLayout is the format layout for minute resolution timestamps.
	MinuteLayout = "2006-01-02 15:04"
	// DayLayout is the format layout for calendar days.
	DayLayout = "2006-01-02"

	// day is the length of a calendar day.
	day = time.Hour * 24
)

// Unit represents the unit of a period specifier.
type Unit int

const (
	Second Unit = iota
	Minute
	Hour
	Day
)

// String stringifies the provided unit.
func (u Unit) String() string {
	switch u {
	case Second:
		return "s"
	case Minute:
		return "m"
	case Hour:
		return "h"
	case Day:
		return "d"
	default:
		return "unknown"
	}
}

// duration returns the length of a single unit.
func (u Unit) duration() time.Duration {
	switch u {
	case Second:
		return time.Second
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	default:
		return day
	}
}

var periodPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// Period represents the bucket width of a time series, e.g. 1m or 5m.
type Period struct {
	Count int
	Unit  Unit
}

// ParsePeriod parses a period specifier of the form <positive integer><unit>.
func ParsePeriod(spec string) (Period, error) {
	m := periodPattern.FindStringSubmatch(spec)
	if m == nil {
		return Period{}, fmt.Errorf("%w: malformed period %q", ErrConfiguration, spec)
	}

	count, err := strconv.Atoi(m[1])
	if err != nil || count <= 0 {
		return Period{}, fmt.Errorf("%w: period count must be positive, got %q", ErrConfiguration, spec)
	}

	var unit Unit
	switch m[2] {
	case "s":
		unit = Second
	case "m":
		unit = Minute
	case "h":
		unit = Hour
	case "d":
		unit = Day
	}

	return Period{Count: count, Unit: unit}, nil
}

// MustParsePeriod parses the provided period specifier and panics on failure.
func MustParsePeriod(spec string) Period {
	p, err := ParsePeriod(spec)
	if err != nil {
		panic(err)
	}

	return p
}

// String stringifies the provided period.
func (p Period) String() string {
	return strconv.Itoa(p.Count) + p.Unit.String()
}

// Width returns the aggregation bucket width of the period.
func (p Period) Width() time.Duration {
	return time.Duration(p.Count) * p.Unit.duration()
}

// startOfDay returns midnight of the calendar day of the provided time.
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// BucketStart returns the start of the bucket the provided time falls in. Buckets are
// anchored to calendar day boundaries, multi-day buckets are anchored to the day count
// since the unix epoch.
func (p Period) BucketStart(t time.Time) time.Time {
	midnight := startOfDay(t)
	width := p.Width()

	if width >= day {
		days := p.Count
		if p.Unit != Day {
			days = int(width / day)
		}

		elapsed := int(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / int64(day/time.Second))
		return midnight.AddDate(0, 0, -(elapsed % days))
	}

	offset := t.Sub(midnight)
	return midnight.Add(offset - offset%width)
}

// BoundariesForDay returns the ordered bucket start instants of the calendar day of the
// provided time.
func (p Period) BoundariesForDay(date time.Time) []time.Time {
	midnight := startOfDay(date)
	next := midnight.AddDate(0, 0, 1)
	width := p.Width()

	if width >= day {
		start := p.BucketStart(midnight)
		if start.Equal(midnight) {
			return []time.Time{midnight}
		}

		return []time.Time{}
	}

	boundaries := make([]time.Time, 0, int(day/width)+1)
	for t := midnight; t.Before(next); t = t.Add(width) {
		boundaries = append(boundaries, t)
	}

	return boundaries
}

// gridKey identifies a cached set of boundaries.
type gridKey struct {
	period Period
	loc    string
}

// Grid caches period boundaries for the current calendar day so they are computed once
// and shared by all callers that day.
type Grid struct {
	day      string
	cache    map[gridKey][]time.Time
	cacheMtx sync.Mutex
}

// NewGrid initializes a new period grid.
func NewGrid() *Grid {
	return &Grid{
		cache: make(map[gridKey][]time.Time),
	}
}

// Boundaries returns the cached boundaries of the provided period for the calendar day of
// the provided time. The returned slice is shared and must not be modified.
func (g *Grid) Boundaries(p Period, date time.Time) []time.Time {
	g.cacheMtx.Lock()
	defer g.cacheMtx.Unlock()

	d := date.Format(DayLayout)
	if d != g.day {
		// A new day invalidates every cached entry.
		g.day = d
		g.cache = make(map[gridKey][]time.Time)
	}

	key := gridKey{period: p, loc: date.Location().String()}
	boundaries, ok := g.cache[key]
	if !ok {
		boundaries = p.BoundariesForDay(date)
		g.cache[key] = boundaries
	}

	return boundaries
}

// IsBoundary checks whether the provided time falls exactly on a bucket start of the period.
func (g *Grid) IsBoundary(p Period, t time.Time) bool {
	boundaries := g.Boundaries(p, t)
	idx := sort.Search(len(boundaries), func(i int) bool {
		return !boundaries[i].Before(t)
	})

	return idx < len(boundaries) && boundaries[idx].Equal(t)
}
