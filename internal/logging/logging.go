// Package logging builds the loggers used across vaultsync.
//
// Log lines go to stderr and, when a log file is configured, to a
// size-rotated file so long-lived vaults do not accumulate unbounded
// logs.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls log destinations.
type Options struct {
	// File enables rotating file output at the given path.
	File string

	// Quiet suppresses stderr output (file logging still applies).
	Quiet bool
}

// New returns a logger factory configured once at startup. Close the
// returned closer on exit when file logging is enabled.
func New(opts Options) (func(prefix string) *log.Logger, io.Closer) {
	var writers []io.Writer
	var closer io.Closer

	if !opts.Quiet {
		writers = append(writers, os.Stderr)
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5, // megabytes
			MaxBackups: 3,
			MaxAge:     30, // days
		}
		writers = append(writers, rotator)
		closer = rotator
	}

	var out io.Writer
	switch len(writers) {
	case 0:
		out = io.Discard
	case 1:
		out = writers[0]
	default:
		out = io.MultiWriter(writers...)
	}

	factory := func(prefix string) *log.Logger {
		return log.New(out, "["+prefix+"] ", log.LstdFlags)
	}

	if closer == nil {
		closer = io.NopCloser(nil)
	}
	return factory, closer
}
