package logger

import (
	"io"
	"os"
	"strings"

	corelogger "github.com/kilianp07/obsched/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// Options control the output of loggers built by this package.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `json:"level"`
	// Format is "console" or "json". Empty selects console when APP_ENV=dev.
	Format string `json:"format"`
	// Output defaults to stdout.
	Output io.Writer `json:"-"`
}

var defaults = Options{}

// Configure sets the options used by New. It is meant to be called once at
// startup, before loggers are created.
func Configure(o Options) { defaults = o }

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable and the level via LOG_LEVEL when not configured.
func New(component string) Logger {
	o := defaults
	if o.Level == "" {
		o.Level = os.Getenv("LOG_LEVEL")
	}
	if o.Format == "" && strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		o.Format = "console"
	}
	return NewZerologLogger(component, o)
}
