// Package logging constructs the process logger: a JSON formatter for
// production, text for development, always an explicitly built
// *logrus.Logger handed into component constructors rather than a
// package-level global.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures a constructed logger.
type Options struct {
	Level  string // logrus level name; defaults to "info" if unparseable
	JSON   bool   // true selects logrus.JSONFormatter
	Output io.Writer
}

// New builds a *logrus.Logger per opts.
func New(opts Options) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if opts.JSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if opts.Output != nil {
		log.SetOutput(opts.Output)
	} else {
		log.SetOutput(os.Stderr)
	}
	return log
}
