package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dnldd/alarm/database"
	"github.com/dnldd/alarm/detector"
	"github.com/dnldd/alarm/engine"
	"github.com/dnldd/alarm/export"
	"github.com/dnldd/alarm/fetch"
	"github.com/dnldd/alarm/market"
	"github.com/dnldd/alarm/notify"
	"github.com/dnldd/alarm/service"
	"github.com/dnldd/alarm/shared"
	"github.com/rs/zerolog"
)

// store is a storage backend able to seed reference data.
type store interface {
	shared.Storer
	shared.Seeder
}

// app holds the wired components of the service.
type app struct {
	cfg           *Config
	loc           *time.Location
	store         store
	closeStore    func()
	marketManager *market.Manager
	alarm         *service.Alarm
	logger        *zerolog.Logger
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context, cfg *Config, loc *time.Location, logger *zerolog.Logger) (store, func(), error) {
	dbLogger := logger.With().Str("component", "database").Logger()

	switch cfg.Store {
	case storeRqlite:
		db, err := database.NewDatabase(ctx, &database.DatabaseConfig{
			Endpoint: cfg.RqliteEndpoint,
			User:     cfg.RqliteUser,
			Pass:     cfg.RqlitePass,
			Location: loc,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating rqlite database: %w", err)
		}

		return db, func() {}, nil

	default:
		db, err := database.NewSQLite(ctx, &database.SQLiteConfig{
			Path:     cfg.SQLitePath,
			Location: loc,
			Logger:   &dbLogger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating sqlite database: %w", err)
		}

		closeFn := func() {
			err := db.Close()
			if err != nil {
				logger.Error().Msgf("closing sqlite database: %v", err)
			}
		}

		return db, closeFn, nil
	}
}

// openSource opens the configured market data source behind the fetch manager.
func openSource(cfg *Config, loc *time.Location, logger *zerolog.Logger) (shared.DataSource, error) {
	var source shared.DataSource

	sourceLogger := logger.With().Str("component", cfg.Source).Logger()
	switch cfg.Source {
	case sourceFile:
		fileSource, err := fetch.NewFileSource(&fetch.FileSourceConfig{
			FilePath: cfg.DataFilepath,
			Location: loc,
			Logger:   &sourceLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating file source: %w", err)
		}

		source = fileSource

	default:
		fmp, err := fetch.NewFMPClient(&fetch.FMPConfig{
			APIKey:   cfg.FMPAPIKey,
			Location: loc,
			Logger:   &sourceLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating fmp client: %w", err)
		}

		source = fmp
	}

	fetchMgrLogger := logger.With().Str("component", "fetchmanager").Logger()
	fetchMgr, err := fetch.NewManager(&fetch.ManagerConfig{
		Source:  source,
		Timeout: cfg.FetchTimeout,
		Workers: cfg.FetchWorkers,
		Logger:  &fetchMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetch manager: %w", err)
	}

	return fetchMgr, nil
}

// loadProgramConfigs seeds the configured program file into storage and returns the
// stored alarm programs and symbols.
func loadProgramConfigs(ctx context.Context, cfg *Config, db store) ([]shared.AlarmProgramConfig, []shared.Symbol, error) {
	if cfg.ProgramsFilepath != "" {
		symbols, programs, err := database.ReadProgramsFile(cfg.ProgramsFilepath)
		if err != nil {
			return nil, nil, err
		}

		err = db.SaveSymbols(ctx, symbols)
		if err != nil {
			return nil, nil, fmt.Errorf("seeding symbols: %w", err)
		}

		err = db.SaveAlarmPrograms(ctx, programs)
		if err != nil {
			return nil, nil, fmt.Errorf("seeding alarm programs: %w", err)
		}
	}

	programs, err := db.ReadAlarmPrograms(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading alarm programs: %w", err)
	}

	if len(programs) == 0 {
		return nil, nil, fmt.Errorf("%w: no alarm programs configured", shared.ErrConfiguration)
	}

	symbols, err := db.ReadSymbols(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("reading symbols: %w", err)
	}

	return programs, symbols, nil
}

// trackedSymbols returns the symbols watched by the provided programs, in order of first
// appearance. Names are taken from the known symbols.
func trackedSymbols(programs []*engine.Program, known []shared.Symbol) []shared.Symbol {
	names := make(map[string]string, len(known))
	for _, symbol := range known {
		names[symbol.Code] = symbol.Name
	}

	seen := make(map[string]struct{})
	symbols := []shared.Symbol{}
	for _, program := range programs {
		for _, code := range program.Config.Symbols {
			if _, ok := seen[code]; ok {
				continue
			}

			seen[code] = struct{}{}
			symbols = append(symbols, shared.Symbol{Code: code, Name: names[code]})
		}
	}

	return symbols
}

// trackedPeriods returns the periods read per symbol by the provided programs.
func trackedPeriods(programs []*engine.Program) (map[string][]shared.Period, error) {
	periods := make(map[string][]shared.Period)
	for _, program := range programs {
		tracked, err := program.TrackedPeriods()
		if err != nil {
			return nil, err
		}

		for _, code := range program.Config.Symbols {
			periods[code] = append(periods[code], tracked...)
		}
	}

	return periods, nil
}

// newSink returns the alert sink of the configured notifiers.
func newSink(cfg *Config, logger *zerolog.Logger) (shared.AlertSink, error) {
	sinkLogger := logger.With().Str("component", "alerts").Logger()
	sinks := []shared.AlertSink{notify.NewLogSink(&sinkLogger)}

	if cfg.TelegramToken != "" {
		chatID, err := cfg.ChatID()
		if err != nil {
			return nil, err
		}

		telegramLogger := logger.With().Str("component", "telegram").Logger()
		telegram, err := notify.NewTelegramSink(&notify.TelegramConfig{
			Token:  cfg.TelegramToken,
			ChatID: chatID,
			Logger: &telegramLogger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating telegram sink: %w", err)
		}

		sinks = append(sinks, telegram)
	}

	return notify.NewMultiSink(sinks...), nil
}

// newApp wires the components of the service.
func newApp(ctx context.Context, cfg *Config, logger *zerolog.Logger) (*app, error) {
	_, loc, err := shared.MarketTime(cfg.Location)
	if err != nil {
		return nil, err
	}

	db, closeStore, err := openStore(ctx, cfg, loc, logger)
	if err != nil {
		return nil, err
	}

	a, err := wire(ctx, cfg, loc, db, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	a.closeStore = closeStore
	return a, nil
}

// wire wires the components of the service around the provided store.
func wire(ctx context.Context, cfg *Config, loc *time.Location, db store, logger *zerolog.Logger) (*app, error) {
	registry := engine.NewRegistry()
	err := detector.Register(registry)
	if err != nil {
		return nil, fmt.Errorf("registering detectors: %w", err)
	}

	programCfgs, known, err := loadProgramConfigs(ctx, cfg, db)
	if err != nil {
		return nil, err
	}

	programs, err := engine.LoadPrograms(programCfgs, registry)
	if err != nil {
		return nil, err
	}

	periods, err := trackedPeriods(programs)
	if err != nil {
		return nil, err
	}

	source, err := openSource(cfg, loc, logger)
	if err != nil {
		return nil, err
	}

	basePeriod, err := shared.ParsePeriod(cfg.BasePeriod)
	if err != nil {
		return nil, err
	}

	marketMgrLogger := logger.With().Str("component", "marketmanager").Logger()
	marketMgr, err := market.NewManager(&market.ManagerConfig{
		Symbols:      trackedSymbols(programs, known),
		Periods:      periods,
		BasePeriod:   basePeriod,
		HistoryLimit: cfg.HistoryLimit,
		InitialBars:  cfg.InitialBars,
		Source:       source,
		Storer:       db,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       &marketMgrLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating market manager: %w", err)
	}

	sink, err := newSink(cfg, logger)
	if err != nil {
		return nil, err
	}

	engineLogger := logger.With().Str("component", "engine").Logger()
	alarmEngine, err := engine.NewEngine(&engine.EngineConfig{
		Programs:     programs,
		Snapshot:     marketMgr.Snapshot,
		Storer:       db,
		StoreTimeout: cfg.StoreTimeout,
		Sink:         sink,
		Grid:         shared.NewGrid(),
		Logger:       &engineLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating alarm engine: %w", err)
	}

	clock, err := shared.NewClock(shared.ClockConfig{
		PollInterval: cfg.PollInterval,
		Grace:        cfg.Grace,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session clock: %w", err)
	}

	alarmLogger := logger.With().Str("component", "alarm").Logger()
	alarm, err := service.NewAlarm(&service.AlarmConfig{
		Market:   marketMgr,
		Engine:   alarmEngine,
		Clock:     clock,
		Location:  loc,
		Scheduled: cfg.Scheduled,
		Logger:    &alarmLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating alarm service: %w", err)
	}

	return &app{
		cfg:           cfg,
		loc:           loc,
		store:         db,
		closeStore:    func() {},
		marketManager: marketMgr,
		alarm:         alarm,
		logger:        logger,
	}, nil
}

// exportDay refreshes the market series and exports the provided day of every tracked symbol.
func (a *app) exportDay(ctx context.Context, day time.Time) error {
	err := a.marketManager.Refresh(ctx, time.Now().In(a.loc))
	if err != nil && !errors.Is(err, shared.ErrDataUnavailable) {
		a.logger.Error().Msgf("refreshing market data: %v", err)
	}

	var errs error
	for _, symbol := range a.marketManager.Symbols() {
		path, err := export.ExportDay(a.marketManager, symbol.Code, day, a.cfg.ExportDir)
		if err != nil {
			a.logger.Error().Msgf("exporting %s: %v", symbol.Code, err)
			errs = errors.Join(errs, err)
			continue
		}

		a.logger.Info().Msgf("exported %s to %s", symbol.Code, path)
	}

	return errs
}

// run drives the alarm service until the provided context is cancelled.
func (a *app) run(ctx context.Context) error {
	defer a.closeStore()

	if a.cfg.ExportDate != "" {
		day, err := a.cfg.exportDay(time.Now(), a.loc)
		if err != nil {
			return err
		}

		return a.exportDay(ctx, day)
	}

	if a.cfg.Scheduled {
		return a.alarm.RunScheduled(ctx)
	}

	a.alarm.RunLoop(ctx)
	return nil
}
