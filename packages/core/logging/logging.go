// Package logging builds the diagnostic logger. Diagnostics go to stderr so
// they never mix with report output on stdout.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configure New.
type Options struct {
	Output  io.Writer
	Verbose bool
	JSON    bool
}

// New returns a logger at warn level, or debug level when Verbose is set.
func New(opts Options) *logrus.Logger {
	logger := logrus.New()
	logger.Out = opts.Output
	if logger.Out == nil {
		logger.Out = os.Stderr
	}

	logger.Level = logrus.WarnLevel
	if opts.Verbose {
		logger.Level = logrus.DebugLevel
	}

	if opts.JSON {
		logger.Formatter = &logrus.JSONFormatter{}
	} else {
		logger.Formatter = &logrus.TextFormatter{
			DisableTimestamp: true,
		}
	}
	return logger
}
