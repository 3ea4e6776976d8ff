package shared

import (
	"errors"
	"fmt"
	"time"
)

const (
	// Trading session times, in market wall clock time.
	MorningOpen    = "09:30"
	MorningClose   = "11:30"
	AfternoonOpen  = "13:00"
	AfternoonClose = "15:00"

	// DefaultPollInterval is the default sleep duration while the market is open.
	DefaultPollInterval = time.Second * 20
	// DefaultGrace is the default duration evaluation continues after a session closes.
	DefaultGrace = time.Second * 30
	// TickOffset is the offset into a minute at which timer driven ticks fire.
	TickOffset = time.Second * 3
)

// SessionState represents the logical state of a trading day.
type SessionState int

const (
	PreOpen SessionState = iota
	MorningSession
	MiddayBreak
	AfternoonSession
	PostCloseGrace
	Closed
)

// String stringifies the provided session state.
func (s SessionState) String() string {
	switch s {
	case PreOpen:
		return "pre-open"
	case MorningSession:
		return "morning session"
	case MiddayBreak:
		return "midday break"
	case AfternoonSession:
		return "afternoon session"
	case PostCloseGrace:
		return "post close grace"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClockConfig represents the session clock configuration.
type ClockConfig struct {
	// PollInterval is the sleep duration while the market is open.
	PollInterval time.Duration
	// Grace is the duration evaluation continues after a session closes to catch trailing
	// data, zero disables it.
	Grace time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *ClockConfig) Validate() error {
	var errs error

	if cfg.PollInterval < time.Second {
		errs = errors.Join(errs, fmt.Errorf("poll interval must be at least a second, got %v", cfg.PollInterval))
	}
	if cfg.Grace < 0 {
		errs = errors.Join(errs, fmt.Errorf("grace cannot be negative, got %v", cfg.Grace))
	}

	return errs
}

// Clock decides when the market is open and how long to sleep until the next decision
// point. It is a pure function of the provided time.
type Clock struct {
	cfg            ClockConfig
	morningOpen    time.Time
	morningClose   time.Time
	afternoonOpen  time.Time
	afternoonClose time.Time
}

// NewClock initializes a new session clock, a zero poll interval is set to its default.
func NewClock(cfg ClockConfig) (*Clock, error) {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	clock := &Clock{cfg: cfg}
	sessionTimes := []struct {
		value string
		dst   *time.Time
	}{
		{MorningOpen, &clock.morningOpen},
		{MorningClose, &clock.morningClose},
		{AfternoonOpen, &clock.afternoonOpen},
		{AfternoonClose, &clock.afternoonClose},
	}

	for _, st := range sessionTimes {
		t, err := time.Parse(SessionTimeLayout, st.value)
		if err != nil {
			return nil, fmt.Errorf("parsing session time %s: %w", st.value, err)
		}

		*st.dst = t
	}

	return clock, nil
}

// PollInterval returns the configured poll interval.
func (c *Clock) PollInterval() time.Duration {
	return c.cfg.PollInterval
}

// at returns the session time on the calendar day of now, shifted by the provided days.
func at(now time.Time, session time.Time, days int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+days, session.Hour(), session.Minute(), 0, 0, now.Location())
}

// State returns the session state of the provided time.
func (c *Clock) State(now time.Time) SessionState {
	weekday := now.Weekday()
	if weekday == time.Saturday || weekday == time.Sunday {
		return Closed
	}

	switch {
	case now.Before(at(now, c.morningOpen, 0)):
		return PreOpen
	case !now.After(at(now, c.morningClose, 0).Add(c.cfg.Grace)):
		return MorningSession
	case now.Before(at(now, c.afternoonOpen, 0)):
		return MiddayBreak
	case !now.After(at(now, c.afternoonClose, 0)):
		return AfternoonSession
	case !now.After(at(now, c.afternoonClose, 0).Add(c.cfg.Grace)):
		return PostCloseGrace
	default:
		return Closed
	}
}

// IsOpen checks whether evaluation should run at the provided time.
func (c *Clock) IsOpen(now time.Time) bool {
	switch c.State(now) {
	case MorningSession, AfternoonSession, PostCloseGrace:
		return true
	default:
		return false
	}
}

// nextOpen returns the next session open after the provided closed time.
func (c *Clock) nextOpen(now time.Time) time.Time {
	switch now.Weekday() {
	case time.Saturday:
		return at(now, c.morningOpen, 2)
	case time.Sunday:
		return at(now, c.morningOpen, 1)
	}

	switch c.State(now) {
	case PreOpen:
		return at(now, c.morningOpen, 0)
	case MiddayBreak:
		return at(now, c.afternoonOpen, 0)
	default:
		if now.Weekday() == time.Friday {
			// Skip the weekend.
			return at(now, c.morningOpen, 3)
		}

		return at(now, c.morningOpen, 1)
	}
}

// Decide returns whether the market is open at the provided time and how long to sleep
// until the next decision point. Sleep durations are whole seconds.
func (c *Clock) Decide(now time.Time) (bool, time.Duration) {
	if c.IsOpen(now) {
		return true, c.cfg.PollInterval
	}

	sleep := c.nextOpen(now).Sub(now).Truncate(time.Second)
	if sleep < time.Second {
		// Clamp boundary races to the poll interval.
		sleep = c.cfg.PollInterval
	}

	return false, sleep
}

// NextTick returns the next minute tick (at the tick offset) within an open session.
func (c *Clock) NextTick(now time.Time) time.Time {
	next := TruncateMinute(now).Add(TickOffset)
	if !next.After(now) {
		next = next.Add(time.Minute)
	}

	if c.IsOpen(next) {
		return next
	}

	return c.nextOpen(next).Add(TickOffset)
}
