// Package logging configures the process-wide phuslu logger.
package logging

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/phuslu/log"
)

// Setup installs the default logger. format is "json", "console" or
// "auto"; auto picks console output when stderr is a terminal.
func Setup(level, format string) {
	logger := log.Logger{
		Level: log.ParseLevel(strings.ToLower(level)),
	}
	if useConsole(format) {
		logger.Writer = &log.ConsoleWriter{
			Writer:      os.Stderr,
			ColorOutput: true,
		}
	} else {
		logger.Writer = &log.IOWriter{Writer: os.Stderr}
	}
	log.DefaultLogger = logger
}

// IsTerminal reports whether stderr is attached to a terminal.
func IsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func useConsole(format string) bool {
	switch strings.ToLower(format) {
	case "console":
		return true
	case "json":
		return false
	default:
		return IsTerminal()
	}
}
