// Package kartlog centralises Kart's command-level logging. Per-command
// diagnostics use logrus; the LFS transfer worker pool (the one genuinely
// concurrent component of the core) logs through zap instead, since its
// structured, allocation-light logging suits a hot path better than
// logrus's field-map style.
package kartlog

import (
	"os"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// Fields is a type alias so callers don't need to import logrus directly.
type Fields = logrus.Fields

var std = newStd()

func newStd() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Std returns the process-wide command logger.
func Std() *logrus.Logger {
	return std
}

// SetVerbose raises the command logger to debug level, equivalent to the
// CLI's -v/--verbose flag.
func SetVerbose(v bool) {
	if v {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}

// WithFields is shorthand for Std().WithFields.
func WithFields(f Fields) *logrus.Entry {
	return std.WithFields(f)
}

var transferLogger *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		// Logging must never block startup; fall back to a no-op logger.
		l = zap.NewNop()
	}
	transferLogger = l
}

// Transfers returns the structured logger used by the LFS worker pool.
func Transfers() *zap.Logger {
	return transferLogger
}
