package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dnldd/alarm/shared"
	"github.com/rs/zerolog"
)

// FormatEvent renders the provided alert event as a single line.
func FormatEvent(event *shared.AlertEvent) string {
	return fmt.Sprintf("%s %s %s %s", event.Date.Format(shared.MinuteLayout), event.Symbol, event.Period, event.Message)
}

// FormatEvents renders the provided alert events, one per line.
func FormatEvents(events []shared.AlertEvent) string {
	var b strings.Builder
	for idx := range events {
		if idx > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(FormatEvent(&events[idx]))
	}

	return b.String()
}

// LogSink writes delivered alerts to the log.
type LogSink struct {
	logger *zerolog.Logger
}

// Ensure the log sink implements the AlertSink interface.
var _ shared.AlertSink = (*LogSink)(nil)

// NewLogSink initializes a new log sink.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Deliver logs the provided alert events.
func (s *LogSink) Deliver(_ context.Context, events []shared.AlertEvent, notify bool) error {
	for idx := range events {
		event := &events[idx]
		s.logger.Info().
			Str("symbol", event.Symbol).
			Str("period", event.Period).
			Str("date", event.Date.Format(shared.MinuteLayout)).
			Bool("notify", notify).
			Msg(event.Message)
	}

	return nil
}

// MultiSink fans delivered alerts out to several sinks.
type MultiSink struct {
	sinks []shared.AlertSink
}

// Ensure the multi sink implements the AlertSink interface.
var _ shared.AlertSink = (*MultiSink)(nil)

// NewMultiSink initializes a new multi sink.
func NewMultiSink(sinks ...shared.AlertSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Deliver hands the provided alert events to every sink, a failing sink does not stop
// delivery to the rest.
func (s *MultiSink) Deliver(ctx context.Context, events []shared.AlertEvent, notify bool) error {
	var errs error
	for _, sink := range s.sinks {
		err := sink.Deliver(ctx, events, notify)
		if err != nil {
			errs = errors.Join(errs, err)
		}
	}

	return errs
}
