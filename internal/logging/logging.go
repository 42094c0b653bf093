// Package logging builds the devsync slog logger from configuration, carries
// it through contexts, and writes the tagged status lines shown to humans.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/devsync/internal/config"
)

// Setup installs a logger for cfg that writes to stderr.
func Setup(cfg *config.Config) *slog.Logger {
	return SetupWithWriter(cfg, os.Stderr)
}

// SetupWithWriter installs a logger for cfg that writes to w. The logger
// becomes slog's default and every record carries app=devsync.
func SetupWithWriter(cfg *config.Config, w io.Writer) *slog.Logger {
	handler := newHandler(cfg.LogFormat, w, ParseLevel(cfg.EffectiveLogLevel()))

	logger := slog.New(handler).With(slog.String("app", Tag))
	slog.SetDefault(logger)

	return logger
}

// newHandler picks the handler for format. Text records omit the time since
// they share the terminal with the status lines.
func newHandler(format string, w io.Writer, level slog.Leveler) slog.Handler {
	if format == config.LogFormatJSON {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}

	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}

			return a
		},
	})
}

// ParseLevel maps a configured level name to slog. Matching ignores case
// and surrounding space, "warning" is accepted for warn, and anything
// unknown means info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case config.LogLevelDebug:
		return slog.LevelDebug
	case config.LogLevelWarn, "warning":
		return slog.LevelWarn
	case config.LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type loggerKey struct{}

// NewContext attaches logger to ctx.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached by NewContext or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}

	return slog.Default()
}
