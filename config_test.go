package main

import (
	"errors"
	"flag"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dnldd/alarm/shared"
	"github.com/peterldowns/testy/assert"
)

func validConfig() Config {
	cfg := Config{
		FMPAPIKey: "apikey",
	}
	cfg.setDefaults()

	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr []string
	}{
		{
			name:    "valid config, fmp source and sqlite store",
			mutate:  func(cfg *Config) {},
			wantErr: nil,
		},
		{
			name: "missing fmp api key",
			mutate: func(cfg *Config) {
				cfg.FMPAPIKey = ""
			},
			wantErr: []string{"fmp api key cannot be an empty string"},
		},
		{
			name: "file source without data filepath",
			mutate: func(cfg *Config) {
				cfg.Source = sourceFile
			},
			wantErr: []string{"data filepath cannot be an empty string"},
		},
		{
			name: "unknown source and store",
			mutate: func(cfg *Config) {
				cfg.Source = "ftp"
				cfg.Store = "mongo"
			},
			wantErr: []string{`unknown data source "ftp"`, `unknown store "mongo"`},
		},
		{
			name: "rqlite store without endpoint",
			mutate: func(cfg *Config) {
				cfg.Store = storeRqlite
			},
			wantErr: []string{"rqlite endpoint cannot be an empty string"},
		},
		{
			name: "negative durations",
			mutate: func(cfg *Config) {
				cfg.Grace = -time.Second
				cfg.StoreTimeout = -time.Second
			},
			wantErr: []string{"grace cannot be negative", "timeouts cannot be negative"},
		},
		{
			name: "malformed base period",
			mutate: func(cfg *Config) {
				cfg.BasePeriod = "1x"
			},
			wantErr: []string{`malformed period "1x"`},
		},
		{
			name: "telegram token without chat id",
			mutate: func(cfg *Config) {
				cfg.TelegramToken = "token"
			},
			wantErr: []string{"invalid telegram chat id"},
		},
		{
			name: "telegram token with chat id",
			mutate: func(cfg *Config) {
				cfg.TelegramToken = "token"
				cfg.TelegramChatID = "-100200300"
			},
			wantErr: nil,
		},
		{
			name: "malformed export date",
			mutate: func(cfg *Config) {
				cfg.ExportDate = "2024/03/04"
			},
			wantErr: []string{`malformed export date "2024/03/04"`},
		},
		{
			name: "unknown location and log level",
			mutate: func(cfg *Config) {
				cfg.Location = "Mars/Olympus"
				cfg.LogLevel = "loud"
			},
			wantErr: []string{`loading location "Mars/Olympus"`, "Unknown Level String"},
		},
		{
			name: "negative limits",
			mutate: func(cfg *Config) {
				cfg.HistoryLimit = -1
				cfg.InitialBars = -1
				cfg.FetchWorkers = -1
			},
			wantErr: []string{
				"history limit cannot be negative",
				"initial bars cannot be negative",
				"fetch workers cannot be negative",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}

			assert.True(t, errors.Is(err, shared.ErrConfiguration))
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected error to contain %q, got %v", want, err)
				}
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	// Ensure unset optional fields are defaulted.
	var cfg Config
	cfg.setDefaults()
	assert.Equal(t, cfg.Source, sourceFMP)
	assert.Equal(t, cfg.Store, storeSQLite)
	assert.Equal(t, cfg.SQLitePath, "alarm.db")
	assert.Equal(t, cfg.BasePeriod, "1m")
	assert.Equal(t, cfg.Location, shared.MarketLocation)
	assert.Equal(t, cfg.ExportDir, "data")
	assert.Equal(t, cfg.LogLevel, "info")

	// Ensure the rqlite store does not get a sqlite path.
	cfg = Config{Store: storeRqlite}
	cfg.setDefaults()
	assert.Equal(t, cfg.SQLitePath, "")
}

func TestConfigExportDay(t *testing.T) {
	loc := time.FixedZone("CST", 8*60*60)
	now := time.Date(2024, 3, 4, 15, 30, 0, 0, loc)

	// Ensure today resolves to the current day.
	cfg := Config{ExportDate: "today"}
	day, err := cfg.exportDay(now, loc)
	assert.NoError(t, err)
	assert.Equal(t, day, now)

	// Ensure explicit days are parsed in the market location.
	cfg = Config{ExportDate: "2024-03-01"}
	day, err = cfg.exportDay(now, loc)
	assert.NoError(t, err)
	assert.Equal(t, day, time.Date(2024, 3, 1, 0, 0, 0, 0, loc))

	cfg = Config{ExportDate: "yesterday"}
	_, err = cfg.exportDay(now, loc)
	assert.True(t, errors.Is(err, shared.ErrConfiguration))
}

func TestLoadConfig(t *testing.T) {
	// Save and restore original os.Args
	origArgs := os.Args
	defer func() {
		os.Args = origArgs
	}()

	tests := []struct {
		name        string
		env         map[string]string
		args        []string
		expectErr   bool
		expectInErr []string
		expectCfg   Config
	}{
		{
			name: "all from env",
			env: map[string]string{
				"source":       "file",
				"datafilepath": "testdata/bars.json",
				"pollinterval": "30s",
				"fetchworkers": "4",
				"scheduled":    "true",
			},
			args: []string{"cmd"},
			expectCfg: Config{
				Source:       sourceFile,
				DataFilepath: "testdata/bars.json",
				PollInterval: 30 * time.Second,
				Grace:        shared.DefaultGrace,
				FetchWorkers: 4,
				Scheduled:    true,
			},
		},
		{
			name: "all from flags",
			env:  map[string]string{},
			args: []string{"cmd", "-fmpapikey=apikey", "-store=rqlite", "-rqliteendpoint=http://localhost:4001",
				"-grace=45s"},
			expectCfg: Config{
				Source:         sourceFMP,
				FMPAPIKey:      "apikey",
				Store:          storeRqlite,
				RqliteEndpoint: "http://localhost:4001",
				Grace:          45 * time.Second,
			},
		},
		{
			name: "flags override env",
			env: map[string]string{
				"fmpapikey":  "envkey",
				"baseperiod": "5m",
			},
			args: []string{"cmd", "-fmpapikey=flagkey"},
			expectCfg: Config{
				Source:     sourceFMP,
				FMPAPIKey:  "flagkey",
				Store:      storeSQLite,
				BasePeriod: "5m",
				Grace:      shared.DefaultGrace,
			},
		},
		{
			name: "grace disabled",
			env:  map[string]string{},
			args: []string{"cmd", "-fmpapikey=apikey", "-grace=0s"},
			expectCfg: Config{
				Source:    sourceFMP,
				FMPAPIKey: "apikey",
				Grace:     0,
			},
		},
		{
			name: "grace disabled from env",
			env: map[string]string{
				"fmpapikey": "apikey",
				"grace":     "0s",
			},
			args: []string{"cmd"},
			expectCfg: Config{
				Source:    sourceFMP,
				FMPAPIKey: "apikey",
				Grace:     0,
			},
		},
		{
			name:        "missing fmp api key",
			env:         map[string]string{},
			args:        []string{"cmd"},
			expectErr:   true,
			expectInErr: []string{"fmp api key cannot be an empty string"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Reset flags for each test
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			os.Args = tt.args

			var cfg Config
			err := loadConfig(&cfg, "testdata/missing.env")

			if tt.expectErr {
				assert.Error(t, err)
				for _, want := range tt.expectInErr {
					if !strings.Contains(err.Error(), want) {
						t.Errorf("expected error to contain %q, got %v", want, err)
					}
				}
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, cfg.Source, tt.expectCfg.Source)
			if tt.expectCfg.FMPAPIKey != "" {
				assert.Equal(t, cfg.FMPAPIKey, tt.expectCfg.FMPAPIKey)
			}
			if tt.expectCfg.DataFilepath != "" {
				assert.Equal(t, cfg.DataFilepath, tt.expectCfg.DataFilepath)
			}
			if tt.expectCfg.Store != "" {
				assert.Equal(t, cfg.Store, tt.expectCfg.Store)
			}
			if tt.expectCfg.RqliteEndpoint != "" {
				assert.Equal(t, cfg.RqliteEndpoint, tt.expectCfg.RqliteEndpoint)
			}
			if tt.expectCfg.BasePeriod != "" {
				assert.Equal(t, cfg.BasePeriod, tt.expectCfg.BasePeriod)
			}
			assert.Equal(t, cfg.PollInterval, tt.expectCfg.PollInterval)
			assert.Equal(t, cfg.Grace, tt.expectCfg.Grace)
			assert.Equal(t, cfg.FetchWorkers, tt.expectCfg.FetchWorkers)
			assert.Equal(t, cfg.Scheduled, tt.expectCfg.Scheduled)
		})
	}
}

func TestRegisterFlag(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	var cfg Config

	// Ensure non-pointer values are rejected.
	err := cfg.registerFlag("value", "string", "a value")
	assert.Error(t, err)

	// Ensure unsupported types are rejected.
	var ratio float64
	err = cfg.registerFlag("ratio", &ratio, "a ratio")
	assert.Error(t, err)

	var count int64
	err = cfg.registerFlag("count", &count, "a count")
	assert.Error(t, err)

	// Ensure flags are only registered once.
	err = cfg.registerFlag("source", &cfg.Source, "the source")
	assert.NoError(t, err)
	err = cfg.registerFlag("source", &cfg.Source, "the source")
	assert.NoError(t, err)
}
