// Package logging builds the zerolog logger shared by the server and CLI.
package logging

import (
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/spacelift-flows-apps/flows-app-spacelift/internal/config"
)

// Output formats accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a logger writing to w at the level and in the format named by
// cfg. Unknown levels fall back to info; unknown formats fall back to JSON.
func New(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := w
	if strings.EqualFold(cfg.Format, FormatConsole) {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
			NoColor:    true,
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				"module",
				zerolog.MessageFieldName,
			},
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// Module returns a child logger tagged with the given subsystem name.
func Module(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("module", name).Logger()
}
