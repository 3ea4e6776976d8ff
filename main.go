package main

import (
	"context"
	"os"
	"os/signal"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

// handleTermination processes context cancellation signals or interrupt signals from the OS.
func handleTermination(ctx context.Context, cancel context.CancelFunc) {
	// Listen for interrupt signals.
	signals := []os.Signal{os.Interrupt}
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, signals...)

	// Wait for the context to be cancelled or an interrupt signal.
	for {
		select {
		case <-ctx.Done():
			return

		case <-interrupt:
			cancel()
		}
	}
}

func main() {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	logger := log.With().Str("service", "alarm").Logger()

	var cfg Config
	err := loadConfig(&cfg, "")
	if err != nil {
		logger.Error().Msgf("loading config: %v", err)
		os.Exit(1)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	zerolog.SetGlobalLevel(level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleTermination(ctx, cancel)

	app, err := newApp(ctx, &cfg, &logger)
	if err != nil {
		logger.Error().Msgf("creating alarm service: %v", err)
		os.Exit(1)
	}

	err = app.run(ctx)
	if err != nil {
		logger.Error().Msgf("running alarm service: %v", err)
		os.Exit(1)
	}
}
