package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

const (
	// tickSpec fires at the tick offset of every minute.
	tickSpec = "3 * * * * *"
)

// ErrTickInFlight is returned when a tick is requested while another is running.
var ErrTickInFlight = errors.New("tick in flight")

// Refresher defines the requirements for refreshing market series.
type Refresher interface {
	// Refresh fetches and merges the bars missing up to the provided time.
	Refresh(ctx context.Context, now time.Time) error
}

// Evaluator defines the requirements for evaluating alarm programs.
type Evaluator interface {
	// Evaluate runs the alarm programs due at the provided time.
	Evaluate(ctx context.Context, now time.Time, bootstrap bool) ([]shared.AlertEvent, error)
}

// AlarmConfig represents the configuration of the alarm service.
type AlarmConfig struct {
	// Market refreshes the market series.
	Market Refresher
	// Engine evaluates the alarm programs.
	Engine Evaluator
	// Clock decides when the market is open.
	Clock *shared.Clock
	// Location is the market location.
	Location *time.Location
	// Scheduled selects the cron driver, which requires a named location.
	Scheduled bool
	// Now returns the current time, it defaults to the wall clock in the market location.
	Now func() time.Time
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *AlarmConfig) Validate() error {
	var errs error

	if cfg.Market == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: market refresher cannot be nil", shared.ErrConfiguration))
	}
	if cfg.Engine == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: engine cannot be nil", shared.ErrConfiguration))
	}
	if cfg.Clock == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: session clock cannot be nil", shared.ErrConfiguration))
	}
	if cfg.Location == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: location cannot be nil", shared.ErrConfiguration))
	}
	if cfg.Scheduled && cfg.Location != nil {
		err := namedLocation(cfg.Location)
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: logger cannot be nil", shared.ErrConfiguration))
	}

	return errs
}

// namedLocation checks the provided location resolves by name, the cron scheduler
// reloads its location from the name.
func namedLocation(loc *time.Location) error {
	_, err := time.LoadLocation(loc.String())
	if err != nil {
		return fmt.Errorf("%w: cron scheduling requires a named location, got %q: %v",
			shared.ErrConfiguration, loc.String(), err)
	}

	return nil
}

// Alarm drives market refreshes and alarm evaluation on the trading schedule.
type Alarm struct {
	cfg       *AlarmConfig
	bootstrap atomic.Bool
	busy      atomic.Bool
	wg        sync.WaitGroup
}

// NewAlarm initializes a new alarm service.
func NewAlarm(cfg *AlarmConfig) (*Alarm, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.Now == nil {
		loc := cfg.Location
		cfg.Now = func() time.Time { return time.Now().In(loc) }
	}

	alarm := &Alarm{cfg: cfg}
	alarm.bootstrap.Store(true)

	return alarm, nil
}

// Tick refreshes the market series and evaluates the alarm programs at the provided time.
// The first tick evaluates in bootstrap mode. Unavailable market data does not stop
// evaluation against the series already held.
func (a *Alarm) Tick(ctx context.Context, now time.Time) ([]shared.AlertEvent, error) {
	if !a.busy.CAS(false, true) {
		return nil, ErrTickInFlight
	}
	defer a.busy.Store(false)

	a.wg.Add(1)
	defer a.wg.Done()

	var errs error
	err := a.cfg.Market.Refresh(ctx, now)
	switch {
	case errors.Is(err, shared.ErrDataUnavailable):
		a.cfg.Logger.Warn().Msgf("refreshing market data: %v", err)
	case err != nil:
		a.cfg.Logger.Error().Msgf("refreshing market data: %v", err)
		errs = errors.Join(errs, err)
	}

	bootstrap := a.bootstrap.CAS(true, false)
	events, err := a.cfg.Engine.Evaluate(ctx, now, bootstrap)
	if err != nil {
		errs = errors.Join(errs, err)
	}

	return events, errs
}

// runTick runs a tick and logs its outcome.
func (a *Alarm) runTick(ctx context.Context, now time.Time) {
	start := time.Now()
	events, err := a.Tick(ctx, now)
	if errors.Is(err, ErrTickInFlight) {
		a.cfg.Logger.Warn().Msgf("skipping tick at %s, previous tick still running", now.Format(shared.DateLayout))
		return
	}
	if err != nil {
		a.cfg.Logger.Error().Msgf("tick at %s: %v", now.Format(shared.DateLayout), err)
	}

	a.cfg.Logger.Debug().Msgf("tick at %s produced %d alerts in %s", now.Format(shared.DateLayout),
		len(events), time.Since(start))
}

// nextWait returns how long to wait before the next loop iteration while the market is
// open. It is the time until the clock's next tick, capped at the poll interval.
func nextWait(clock *shared.Clock, now time.Time) time.Duration {
	wait := clock.NextTick(now).Sub(now)
	if poll := clock.PollInterval(); wait > poll {
		wait = poll
	}

	return wait
}

// due checks whether a tick should fire at the provided time given the minute of the
// last tick.
func due(now time.Time, last time.Time) bool {
	minute := shared.TruncateMinute(now)
	return now.Sub(minute) >= shared.TickOffset && minute.After(last)
}

// RunLoop drives ticks by sleeping according to the session clock. The bootstrap tick
// fires immediately, then a tick fires once per minute, at or after the tick offset, while
// the market is open.
func (a *Alarm) RunLoop(ctx context.Context) {
	a.cfg.Logger.Info().Msg("alarm loop started")

	start := a.cfg.Now()
	a.runTick(ctx, start)

	last := shared.TruncateMinute(start)
	for {
		now := a.cfg.Now()
		open, sleep := a.cfg.Clock.Decide(now)
		if open {
			if due(now, last) {
				last = shared.TruncateMinute(now)
				a.runTick(ctx, now)
				now = a.cfg.Now()
			}

			sleep = nextWait(a.cfg.Clock, now)
		} else {
			a.cfg.Logger.Info().Msgf("market %s, sleeping %s", a.cfg.Clock.State(now), sleep)
		}

		select {
		case <-ctx.Done():
			a.wg.Wait()
			a.cfg.Logger.Info().Msg("alarm loop stopped")
			return
		case <-time.After(sleep):
		}
	}
}

// RunScheduled drives ticks with a cron scheduler firing at the tick offset of every
// minute. The bootstrap tick fires immediately, later ticks outside the trading sessions
// are skipped.
func (a *Alarm) RunScheduled(ctx context.Context) error {
	err := namedLocation(a.cfg.Location)
	if err != nil {
		return err
	}

	a.runTick(ctx, a.cfg.Now())

	scheduler := gocron.NewScheduler(a.cfg.Location)

	_, err = scheduler.CronWithSeconds(tickSpec).SingletonMode().Do(func() {
		now := a.cfg.Now()
		if !a.cfg.Clock.IsOpen(now) {
			return
		}

		a.runTick(ctx, now)
	})
	if err != nil {
		return fmt.Errorf("scheduling alarm ticks: %w", err)
	}

	scheduler.StartAsync()
	a.cfg.Logger.Info().Msg("alarm scheduler started")

	<-ctx.Done()
	scheduler.Stop()
	a.wg.Wait()
	a.cfg.Logger.Info().Msg("alarm scheduler stopped")

	return nil
}
