package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dnldd/alarm/shared"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	// defaultMaxRetries is the default number of send attempts.
	defaultMaxRetries = 3
	// defaultRetryDelay is the default base delay between send attempts.
	defaultRetryDelay = time.Second
	// maxMessageLength is the maximum telegram message length.
	maxMessageLength = 4096
)

// sender defines the requirements for sending telegram messages.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramConfig represents the telegram sink configuration.
type TelegramConfig struct {
	// Token is the bot token.
	Token string
	// ChatID is the chat alerts are sent to.
	ChatID int64
	// MaxRetries is the number of send attempts.
	MaxRetries int
	// RetryDelay is the base delay between send attempts, it grows linearly.
	RetryDelay time.Duration
	// Logger is the sink logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *TelegramConfig) Validate() error {
	var errs error

	if cfg.Token == "" {
		errs = errors.Join(errs, fmt.Errorf("%w: telegram token cannot be empty", shared.ErrConfiguration))
	}
	if cfg.ChatID == 0 {
		errs = errors.Join(errs, fmt.Errorf("%w: telegram chat id cannot be zero", shared.ErrConfiguration))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("%w: logger cannot be nil", shared.ErrConfiguration))
	}

	return errs
}

// TelegramSink sends notifying alerts to a telegram chat.
type TelegramSink struct {
	cfg *TelegramConfig
	bot sender
}

// Ensure the telegram sink implements the AlertSink interface.
var _ shared.AlertSink = (*TelegramSink)(nil)

// NewTelegramSink initializes a new telegram sink.
func NewTelegramSink(cfg *TelegramConfig) (*TelegramSink, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return newTelegramSink(cfg, bot), nil
}

// newTelegramSink initializes a telegram sink around the provided sender.
func newTelegramSink(cfg *TelegramConfig, bot sender) *TelegramSink {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	return &TelegramSink{
		cfg: cfg,
		bot: bot,
	}
}

// send sends the provided text, retrying with a linear backoff.
func (s *TelegramSink) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(s.cfg.ChatID, text)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		_, err := s.bot.Send(msg)
		if err == nil {
			return nil
		}

		lastErr = err
		s.cfg.Logger.Warn().Err(err).Msgf("telegram send attempt %d/%d failed", attempt, s.cfg.MaxRetries)

		if attempt == s.cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.RetryDelay * time.Duration(attempt)):
		}
	}

	return fmt.Errorf("sending telegram message after %d attempts: %w", s.cfg.MaxRetries, lastErr)
}

// splitLine splits a line longer than the telegram length limit on rune boundaries.
func splitLine(line string) []string {
	parts := []string{}
	for len(line) > maxMessageLength {
		cut := maxMessageLength
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}

		parts = append(parts, line[:cut])
		line = line[cut:]
	}

	return append(parts, line)
}

// chunk splits the provided alert events into messages within the telegram length limit.
func chunk(events []shared.AlertEvent) []string {
	messages := []string{}

	var current string
	for idx := range events {
		for _, line := range splitLine(FormatEvent(&events[idx])) {
			if current != "" && len(current)+1+len(line) > maxMessageLength {
				messages = append(messages, current)
				current = ""
			}

			if current != "" {
				current += "\n"
			}
			current += line
		}
	}

	if current != "" {
		messages = append(messages, current)
	}

	return messages
}

// Deliver sends the provided alert events when they are flagged for notification.
func (s *TelegramSink) Deliver(ctx context.Context, events []shared.AlertEvent, notify bool) error {
	if !notify || len(events) == 0 {
		return nil
	}

	for _, text := range chunk(events) {
		err := s.send(ctx, text)
		if err != nil {
			return err
		}
	}

	return nil
}
