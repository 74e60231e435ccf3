// Package logging provides a small leveled wrapper around the standard
// log package, used by every component instead of bare log.Printf.
package logging

import (
	"fmt"
	"log"
	"os"
)

const calldepth = 3

// Logger is a leveled logger. The zero value is not usable; use New.
type Logger struct {
	*log.Logger
	name  string
	debug bool
}

// New creates a Logger that writes to stderr, tagging every line with name.
func New(name string) *Logger {
	return &Logger{
		Logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
		name:   name,
	}
}

func (l *Logger) tag(level, msg string) string {
	return fmt.Sprintf("[%s] %s: %s", level, l.name, msg)
}

// Info logs an informational message.
func (l *Logger) Info(v ...interface{}) {
	l.Output(calldepth, l.tag("INFO", fmt.Sprint(v...)))
}

// Infof logs a formatted informational message.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.Output(calldepth, l.tag("INFO", fmt.Sprintf(format, v...)))
}

// Warn logs a warning.
func (l *Logger) Warn(v ...interface{}) {
	l.Output(calldepth, l.tag("WARN", fmt.Sprint(v...)))
}

// Warnf logs a formatted warning.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.Output(calldepth, l.tag("WARN", fmt.Sprintf(format, v...)))
}

// Error logs an error.
func (l *Logger) Error(v ...interface{}) {
	l.Output(calldepth, l.tag("ERROR", fmt.Sprint(v...)))
}

// Errorf logs a formatted error.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.Output(calldepth, l.tag("ERROR", fmt.Sprintf(format, v...)))
}

// Debug logs a debug message, only when ToggleDebug(true) was called.
func (l *Logger) Debug(v ...interface{}) {
	if l.debug {
		l.Output(calldepth, l.tag("DEBUG", fmt.Sprint(v...)))
	}
}

// ToggleDebug turns debug logging on or off and returns the new state.
func (l *Logger) ToggleDebug(on bool) bool {
	l.debug = on
	return l.debug
}

// Fatal logs an error and exits the process.
func (l *Logger) Fatal(v ...interface{}) {
	l.Output(calldepth, l.tag("FATAL", fmt.Sprint(v...)))
	os.Exit(1)
}

// Fatalf logs a formatted error and exits the process.
func (l *Logger) Fatalf(format string, v ...interface{}) {
	l.Output(calldepth, l.tag("FATAL", fmt.Sprintf(format, v...)))
	os.Exit(1)
}
