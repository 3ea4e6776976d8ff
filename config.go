package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	// Data sources.
	sourceFMP  = "fmp"
	sourceFile = "file"

	// Stores.
	storeSQLite = "sqlite"
	storeRqlite = "rqlite"

	// exportToday exports the current trading day.
	exportToday = "today"
)

// Config is the configuration struct for the service.
type Config struct {
	// Source is the market data source, fmp or file.
	Source string
	// FMPAPIkey is the FMP service API Key.
	FMPAPIKey string
	// DataFilepath is the filepath to the market data of the file source.
	DataFilepath string
	// Store is the storage backend, sqlite or rqlite.
	Store string
	// SQLitePath is the sqlite database filepath.
	SQLitePath string
	// RqliteEndpoint is the rqlite endpoint.
	RqliteEndpoint string
	// RqliteUser is the rqlite user.
	RqliteUser string
	// RqlitePass is the rqlite user pass.
	RqlitePass string
	// ProgramsFilepath is the alarm program seed file, programs are read from storage when empty.
	ProgramsFilepath string
	// BasePeriod is the period fetched from the data source.
	BasePeriod string
	// HistoryLimit caps the base series loaded on bootstrap.
	HistoryLimit int
	// InitialBars is the number of bars fetched for symbols without persisted data.
	InitialBars int
	// Location is the market location.
	Location string
	// Scheduled selects the cron driven scheduler over the sleep loop.
	Scheduled bool
	// PollInterval is the sleep duration while the market is open.
	PollInterval time.Duration
	// Grace is the duration evaluation continues after a session closes.
	Grace time.Duration
	// FetchTimeout is the timeout applied to every fetch.
	FetchTimeout time.Duration
	// FetchWorkers is the maximum number of concurrent symbol fetches.
	FetchWorkers int
	// StoreTimeout is the timeout applied to every storage call.
	StoreTimeout time.Duration
	// TelegramToken is the telegram bot token, alerts are only logged when empty.
	TelegramToken string
	// TelegramChatID is the telegram chat alerts are sent to.
	TelegramChatID string
	// ExportDate runs a one-off export of the provided day (YYYY-MM-DD or today) and exits.
	ExportDate string
	// ExportDir is the directory exported files are written to.
	ExportDir string
	// LogLevel is the log level.
	LogLevel string

	registeredFlags map[string]bool
}

// setDefaults sets the defaults of unset optional fields.
func (cfg *Config) setDefaults() {
	if cfg.Source == "" {
		cfg.Source = sourceFMP
	}
	if cfg.Store == "" {
		cfg.Store = storeSQLite
	}
	if cfg.Store == storeSQLite && cfg.SQLitePath == "" {
		cfg.SQLitePath = "alarm.db"
	}
	if cfg.BasePeriod == "" {
		cfg.BasePeriod = "1m"
	}
	if cfg.Location == "" {
		cfg.Location = shared.MarketLocation
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "data"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = zerolog.LevelInfoValue
	}
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	switch cfg.Source {
	case sourceFMP:
		if cfg.FMPAPIKey == "" {
			errs = errors.Join(errs, fmt.Errorf("%w: fmp api key cannot be an empty string", shared.ErrConfiguration))
		}
	case sourceFile:
		if cfg.DataFilepath == "" {
			errs = errors.Join(errs, fmt.Errorf("%w: data filepath cannot be an empty string", shared.ErrConfiguration))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("%w: unknown data source %q", shared.ErrConfiguration, cfg.Source))
	}

	switch cfg.Store {
	case storeSQLite:
		if cfg.SQLitePath == "" {
			errs = errors.Join(errs, fmt.Errorf("%w: sqlite path cannot be an empty string", shared.ErrConfiguration))
		}
	case storeRqlite:
		if cfg.RqliteEndpoint == "" {
			errs = errors.Join(errs, fmt.Errorf("%w: rqlite endpoint cannot be an empty string", shared.ErrConfiguration))
		}
	default:
		errs = errors.Join(errs, fmt.Errorf("%w: unknown store %q", shared.ErrConfiguration, cfg.Store))
	}

	_, err := shared.ParsePeriod(cfg.BasePeriod)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("base period: %w", err))
	}

	if cfg.HistoryLimit < 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: history limit cannot be negative", shared.ErrConfiguration))
	}
	if cfg.InitialBars < 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: initial bars cannot be negative", shared.ErrConfiguration))
	}
	if cfg.FetchWorkers < 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: fetch workers cannot be negative", shared.ErrConfiguration))
	}
	if cfg.Grace < 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: grace cannot be negative", shared.ErrConfiguration))
	}
	if cfg.FetchTimeout < 0 || cfg.StoreTimeout < 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: timeouts cannot be negative", shared.ErrConfiguration))
	}

	_, err = time.LoadLocation(cfg.Location)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("%w: loading location %q: %v", shared.ErrConfiguration, cfg.Location, err))
	}

	if cfg.TelegramToken != "" {
		_, err := cfg.ChatID()
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}

	if cfg.ExportDate != "" && !strings.EqualFold(cfg.ExportDate, exportToday) {
		_, err := time.Parse(shared.DayLayout, cfg.ExportDate)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("%w: malformed export date %q", shared.ErrConfiguration, cfg.ExportDate))
		}
	}

	_, err = zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		errs = errors.Join(errs, fmt.Errorf("%w: %v", shared.ErrConfiguration, err))
	}

	return errs
}

// ChatID returns the parsed telegram chat id.
func (cfg *Config) ChatID() (int64, error) {
	id, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid telegram chat id %q", shared.ErrConfiguration, cfg.TelegramChatID)
	}

	return id, nil
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Int64:
		// Only handle time.Duration
		d, ok := value.(*time.Duration)
		if !ok {
			return fmt.Errorf("%s: unsupported int64 type", name)
		}
		// Preset durations are the fallback default.
		def := *d
		if defValue != "" {
			def, _ = time.ParseDuration(defValue)
		}
		flag.DurationVar(d, name, def, usage)
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// A zero grace disables the grace window, so its default is set ahead of the flags.
	if cfg.Grace == 0 {
		cfg.Grace = shared.DefaultGrace
	}

	// Register command line arguments using loaded environment variables as defaults.
	flags := []struct {
		name  string
		value interface{}
		usage string
	}{
		{"source", &cfg.Source, "the market data source (fmp, file)"},
		{"fmpapikey", &cfg.FMPAPIKey, "the FMP api key"},
		{"datafilepath", &cfg.DataFilepath, "the market data filepath of the file source"},
		{"store", &cfg.Store, "the storage backend (sqlite, rqlite)"},
		{"sqlitepath", &cfg.SQLitePath, "the sqlite database filepath"},
		{"rqliteendpoint", &cfg.RqliteEndpoint, "the rqlite endpoint"},
		{"rqliteuser", &cfg.RqliteUser, "the rqlite user"},
		{"rqlitepass", &cfg.RqlitePass, "the rqlite user pass"},
		{"programsfilepath", &cfg.ProgramsFilepath, "the alarm program seed filepath"},
		{"baseperiod", &cfg.BasePeriod, "the period fetched from the data source"},
		{"historylimit", &cfg.HistoryLimit, "the maximum number of base bars loaded on bootstrap"},
		{"initialbars", &cfg.InitialBars, "the number of bars fetched for symbols without persisted data"},
		{"location", &cfg.Location, "the market location"},
		{"scheduled", &cfg.Scheduled, "drive ticks with the cron scheduler"},
		{"pollinterval", &cfg.PollInterval, "the sleep duration while the market is open"},
		{"grace", &cfg.Grace, "the duration evaluation continues after a session closes"},
		{"fetchtimeout", &cfg.FetchTimeout, "the timeout applied to every fetch"},
		{"fetchworkers", &cfg.FetchWorkers, "the maximum number of concurrent symbol fetches"},
		{"storetimeout", &cfg.StoreTimeout, "the timeout applied to every storage call"},
		{"telegramtoken", &cfg.TelegramToken, "the telegram bot token"},
		{"telegramchatid", &cfg.TelegramChatID, "the telegram chat id"},
		{"exportdate", &cfg.ExportDate, "export the provided day (YYYY-MM-DD or today) and exit"},
		{"exportdir", &cfg.ExportDir, "the export directory"},
		{"loglevel", &cfg.LogLevel, "the log level"},
	}

	for _, f := range flags {
		err := cfg.registerFlag(f.name, f.value, f.usage)
		if err != nil {
			return err
		}
	}

	// Parse command-line flags.
	flag.Parse()

	cfg.setDefaults()

	return cfg.Validate()
}

// exportDay returns the day to export in the provided location.
func (cfg *Config) exportDay(now time.Time, loc *time.Location) (time.Time, error) {
	if cfg.ExportDate == "" || strings.EqualFold(cfg.ExportDate, exportToday) {
		return now.In(loc), nil
	}

	day, err := time.ParseInLocation(shared.DayLayout, cfg.ExportDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed export date %q", shared.ErrConfiguration, cfg.ExportDate)
	}

	return day, nil
}
