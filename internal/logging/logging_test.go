package logging

import (
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
)

func TestSetup(t *testing.T) {
	saved := log.DefaultLogger
	t.Cleanup(func() { log.DefaultLogger = saved })

	Setup("DEBUG", "console")
	assert.Equal(t, log.DebugLevel, log.DefaultLogger.Level)
	assert.IsType(t, &log.ConsoleWriter{}, log.DefaultLogger.Writer)

	Setup("warn", "json")
	assert.Equal(t, log.WarnLevel, log.DefaultLogger.Level)
	assert.IsType(t, &log.IOWriter{}, log.DefaultLogger.Writer)
}

func TestUseConsole(t *testing.T) {
	assert.True(t, useConsole("console"))
	assert.True(t, useConsole("CONSOLE"))
	assert.False(t, useConsole("json"))
	assert.Equal(t, IsTerminal(), useConsole("auto"))
}
