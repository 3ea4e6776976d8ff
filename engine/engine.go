package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/alarm/shared"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// maxWorkers is the maximum number of concurrent detector evaluations.
	maxWorkers = 16
)

type EngineConfig struct {
	// Programs represents the resolved alarm programs.
	Programs []*Program
	// Snapshot returns the read-only multi-period series of the provided symbol.
	Snapshot func(symbol string) (map[string][]shared.Bar, bool)
	// Storer persists alert events.
	Storer shared.Storer
	// StoreTimeout is the timeout applied to every storage call, it defaults to
	// shared.DefaultStoreTimeout.
	StoreTimeout time.Duration
	// Sink receives the accepted alerts of every tick.
	Sink shared.AlertSink
	// Grid represents the shared period grid.
	Grid *shared.Grid
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *EngineConfig) Validate() error {
	var errs error

	if cfg.Snapshot == nil {
		errs = errors.Join(errs, fmt.Errorf("snapshot function cannot be nil"))
	}
	if cfg.Storer == nil {
		errs = errors.Join(errs, fmt.Errorf("storer cannot be nil"))
	}
	if cfg.StoreTimeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("store timeout cannot be negative"))
	}
	if cfg.Sink == nil {
		errs = errors.Join(errs, fmt.Errorf("alert sink cannot be nil"))
	}
	if cfg.Grid == nil {
		errs = errors.Join(errs, fmt.Errorf("period grid cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// job is a single gated (program, symbol, period) evaluation.
type job struct {
	program *Program
	symbol  string
	period  shared.Period
	series  map[string][]shared.Bar
}

// Engine evaluates alarm programs against the market series and de-duplicates the
// resulting alerts.
type Engine struct {
	cfg        *EngineConfig
	workers    chan struct{}
	emitted    map[shared.AlertKey]struct{}
	emittedMtx sync.Mutex
}

// NewEngine initializes a new alarm engine.
func NewEngine(cfg *EngineConfig) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	if cfg.StoreTimeout == 0 {
		cfg.StoreTimeout = shared.DefaultStoreTimeout
	}

	return &Engine{
		cfg:     cfg,
		workers: make(chan struct{}, maxWorkers),
		emitted: make(map[shared.AlertKey]struct{}),
	}, nil
}

// gate checks whether the provided (symbol, period) pair of a program should be evaluated
// at the provided tick.
func (e *Engine) gate(program *Program, symbol string, period shared.Period, now time.Time, bootstrap bool) bool {
	if last, ok := program.runs.Last(symbol, period.String()); ok && !now.After(last) {
		return false
	}

	if bootstrap {
		return true
	}

	return e.cfg.Grid.IsBoundary(period, now)
}

// plan lists the evaluations of the provided tick in program, symbol and period order.
func (e *Engine) plan(logger *zerolog.Logger, now time.Time, bootstrap bool) []job {
	jobs := []job{}
	for _, program := range e.cfg.Programs {
		for _, symbol := range program.Config.Symbols {
			for _, period := range program.Periods {
				if !e.gate(program, symbol, period, now, bootstrap) {
					continue
				}

				series, ok := e.cfg.Snapshot(symbol)
				if !ok {
					logger.Debug().Msgf("no series loaded for %s, skipping %s %s",
						symbol, program.Config.Algorithm, period.String())
					continue
				}

				jobs = append(jobs, job{
					program: program,
					symbol:  symbol,
					period:  period,
					series:  series,
				})
			}
		}
	}

	return jobs
}

// run evaluates the provided job. Detector failures are logged and swallowed, the
// evaluation is recorded regardless of outcome.
func (e *Engine) run(logger *zerolog.Logger, j job, now time.Time) []shared.Detection {
	period := j.period.String()
	runs := j.program.runs
	last, hasRun := runs.Last(j.symbol, period)

	ctx := &shared.EvalContext{
		Symbol:  j.symbol,
		Period:  period,
		Extra:   j.program.Config.Extra,
		Remark:  j.program.Config.Remark,
		Series:  j.series,
		LastRun: last,
		HasRun:  hasRun,
		Now:     now,
	}

	detections, err := j.program.Detector.Evaluate(ctx)
	runs.Record(j.symbol, period, now)

	switch {
	case errors.Is(err, shared.ErrNotReady):
		logger.Info().Msgf("%s not ready for %s %s: %v", j.program.Config.Algorithm, j.symbol, period, err)
		return nil
	case err != nil:
		logger.Error().Msgf("evaluating %s for %s %s: %v", j.program.Config.Algorithm, j.symbol, period, err)
		logger.Debug().Msgf("program: %s", spew.Sdump(j.program.Config))
		return nil
	}

	return detections
}

// isEmitted checks whether the provided key was emitted earlier in the process lifetime.
func (e *Engine) isEmitted(key shared.AlertKey) bool {
	e.emittedMtx.Lock()
	defer e.emittedMtx.Unlock()

	_, ok := e.emitted[key]
	return ok
}

// markEmitted records the keys of the provided events as emitted.
func (e *Engine) markEmitted(events []shared.AlertEvent) {
	e.emittedMtx.Lock()
	defer e.emittedMtx.Unlock()

	for idx := range events {
		e.emitted[events[idx].Key()] = struct{}{}
	}
}

// Evaluate runs every gated (program, symbol, period) evaluation of the tick at the provided
// time and returns the accepted alerts. The accepted batch is persisted and handed to the
// alert sink, which is only asked to notify when the batch is non-empty outside of the
// bootstrap tick. Persistence failures are returned after the sink has been invoked.
func (e *Engine) Evaluate(ctx context.Context, now time.Time, bootstrap bool) ([]shared.AlertEvent, error) {
	tickID := uuid.New().String()
	logger := e.cfg.Logger.With().Str("tick", tickID).Logger()
	now = shared.TruncateMinute(now)

	var errs error
	readCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	persisted, err := e.cfg.Storer.ReadAlertKeys(readCtx)
	cancel()
	if err != nil {
		logger.Error().Msgf("reading persisted alert keys: %v", err)
		errs = errors.Join(errs, fmt.Errorf("%w: reading alert keys: %v", shared.ErrPersistence, err))
	}

	jobs := e.plan(&logger, now, bootstrap)
	results := make([][]shared.Detection, len(jobs))

	var wg sync.WaitGroup
	for idx := range jobs {
		e.workers <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer func() {
				<-e.workers
				wg.Done()
			}()

			results[idx] = e.run(&logger, jobs[idx], now)
		}(idx)
	}
	wg.Wait()

	seen := make(map[shared.AlertKey]struct{})
	events := []shared.AlertEvent{}
	for idx := range jobs {
		for _, detection := range results[idx] {
			event := shared.AlertEvent{
				Symbol:  jobs[idx].symbol,
				Period:  jobs[idx].period.String(),
				Date:    detection.Date,
				Message: detection.Message,
				TickID:  tickID,
			}

			key := event.Key()
			if _, ok := persisted[key]; ok {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			if e.isEmitted(key) {
				continue
			}

			seen[key] = struct{}{}
			events = append(events, event)
		}
	}

	if len(events) > 0 {
		writeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		err := e.cfg.Storer.AppendAlertEvents(writeCtx, events)
		cancel()
		if err != nil {
			logger.Error().Msgf("persisting %d alert events: %v", len(events), err)
			errs = errors.Join(errs, fmt.Errorf("%w: appending alert events: %v", shared.ErrPersistence, err))
		}

		e.markEmitted(events)
	}

	notify := len(events) > 0 && !bootstrap
	err = e.cfg.Sink.Deliver(ctx, events, notify)
	if err != nil {
		logger.Error().Msgf("delivering %d alert events: %v", len(events), err)
		errs = errors.Join(errs, fmt.Errorf("delivering alert events: %w", err))
	}

	logger.Debug().Msgf("evaluated %d jobs at %s, accepted %d alerts (bootstrap: %v)",
		len(jobs), now.Format(shared.MinuteLayout), len(events), bootstrap)

	return events, errs
}
