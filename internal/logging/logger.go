// Package logging is a thin zerolog wrapper that tags entries by subsystem.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Console styles accepted by NewConsole.
const (
	StylePretty  = "pretty"
	StyleCompact = "compact"
	StyleJSON    = "json"
)

// LevelSilent disables output entirely.
const LevelSilent = "silent"

// Logger is a zerolog logger plus the dotted subsystem path it was derived
// under.
type Logger struct {
	zl        zerolog.Logger
	subsystem string
}

// New returns a root logger on w. A nil w means pretty console output on
// stderr. Unknown levels fall back to info.
func New(w io.Writer, level string) *Logger {
	if w == nil {
		w = consoleWriter(os.Stderr, StylePretty)
	}
	zl := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// NewConsole returns a root logger on stderr in the given style.
func NewConsole(level, style string) *Logger {
	return New(consoleWriter(os.Stderr, style), level)
}

func consoleWriter(out io.Writer, style string) io.Writer {
	switch strings.ToLower(style) {
	case StyleJSON:
		return out
	case StyleCompact:
		return zerolog.ConsoleWriter{
			Out:          out,
			NoColor:      true,
			TimeFormat:   time.TimeOnly,
			PartsExclude: []string{zerolog.CallerFieldName},
		}
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// Sub derives a logger for a subsystem nested under this one's, so
// log.Sub("dialer").Sub("live") tags entries "dialer.live".
func (l *Logger) Sub(name string) *Logger {
	path := name
	if l.subsystem != "" {
		path = l.subsystem + "." + name
	}
	return &Logger{
		zl:        l.zl.With().Str("subsystem", path).Logger(),
		subsystem: path,
	}
}

// Subsystem is the dotted path given to Sub, empty on a root logger.
func (l *Logger) Subsystem() string { return l.subsystem }

// With derives a logger that adds key=value to every entry.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger(), subsystem: l.subsystem}
}

func (l *Logger) Trace() *zerolog.Event { return l.zl.Trace() }
func (l *Logger) Debug() *zerolog.Event { return l.zl.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.zl.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.zl.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.zl.Error() }

// ParseLevel maps a config level name, case-insensitively, to zerolog's.
// "silent" disables logging; anything unrecognised means info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == LevelSilent {
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
