package engine

import (
	"errors"
	"fmt"

	"github.com/dnldd/alarm/shared"
)

// periodParams are the extra parameters multi-period detectors read additional periods from.
var periodParams = []string{"period_long", "period_short"}

// Program is an alarm program resolved against the detector registry. Every program keeps
// its own run state.
type Program struct {
	Config   shared.AlarmProgramConfig
	Detector shared.Detector
	Periods  []shared.Period
	runs     *RunState
}

// NewProgram validates the provided program config and resolves its detector.
func NewProgram(cfg shared.AlarmProgramConfig, reg *Registry) (*Program, error) {
	var errs error
	if cfg.Algorithm == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: program algorithm cannot be empty", shared.ErrConfiguration))
	}
	if len(cfg.Symbols) == 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: program %s has no symbols", shared.ErrConfiguration, cfg.Algorithm))
	}
	if len(cfg.Periods) == 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: program %s has no periods", shared.ErrConfiguration, cfg.Algorithm))
	}

	periods := make([]shared.Period, 0, len(cfg.Periods))
	for _, spec := range cfg.Periods {
		period, err := shared.ParsePeriod(spec)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("program %s: %w", cfg.Algorithm, err))
			continue
		}

		periods = append(periods, period)
	}

	if errs != nil {
		return nil, errs
	}

	detector, err := reg.Resolve(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	return &Program{
		Config:   cfg,
		Detector: detector,
		Periods:  periods,
		runs:     NewRunState(),
	}, nil
}

// RunState returns the run state of the program.
func (p *Program) RunState() *RunState {
	return p.runs
}

// TrackedPeriods returns every period the program reads, including the periods named by
// multi-period extra parameters.
func (p *Program) TrackedPeriods() ([]shared.Period, error) {
	tracked := make([]shared.Period, 0, len(p.Periods)+len(periodParams))
	tracked = append(tracked, p.Periods...)

	for _, key := range periodParams {
		v, ok := p.Config.Extra[key]
		if !ok {
			continue
		}

		spec, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: program %s parameter %s must be a period string",
				shared.ErrConfiguration, p.Config.Algorithm, key)
		}

		period, err := shared.ParsePeriod(spec)
		if err != nil {
			return nil, fmt.Errorf("program %s parameter %s: %w", p.Config.Algorithm, key, err)
		}

		tracked = append(tracked, period)
	}

	return tracked, nil
}

// LoadPrograms resolves every provided program config. Failures are joined so every
// misconfigured program is reported at once.
func LoadPrograms(cfgs []shared.AlarmProgramConfig, reg *Registry) ([]*Program, error) {
	var errs error
	programs := make([]*Program, 0, len(cfgs))
	for idx := range cfgs {
		program, err := NewProgram(cfgs[idx], reg)
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		_, err = program.TrackedPeriods()
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}

		programs = append(programs, program)
	}

	if errs != nil {
		return nil, errs
	}

	return programs, nil
}
