// Package logging provides the daemon's process-wide logging facility. It
// wraps the standard library logger rather than pulling in a structured
// logging framework, since nothing downstream of this daemon consumes
// machine-parsed log output.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Logger is the main logger type. It has the novel property that it still
// functions if nil (logging nothing), so components can accept a *Logger
// without nil-checking every call site. It is safe for concurrent use.
type Logger struct {
	// prefix is any dotted prefix accumulated via Sublogger.
	prefix string
	// level is the minimum level at which this logger emits output.
	level Level
	// target is the underlying standard library logger.
	target *log.Logger
}

// RootLogger is the root logger from which all other loggers derive. It
// defaults to LevelInfo on stderr and may be reconfigured once at process
// startup via Configure.
var RootLogger = &Logger{
	level:  LevelInfo,
	target: log.New(os.Stderr, "", log.LstdFlags),
}

var configureOnce sync.Once

// Configure performs one-time process-wide logger initialization, binding
// RootLogger's level and output writer. Subsequent calls are no-ops:
// logging bootstrap is process-lifecycle state, and re-initializing
// mid-process would race with in-flight sublogger output.
func Configure(level Level, writer io.Writer) {
	configureOnce.Do(func() {
		RootLogger.level = level
		RootLogger.target = log.New(writer, "", log.LstdFlags)
	})
}

// Sublogger creates a new sublogger with the specified name appended to the
// dotted prefix chain.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{
		prefix: prefix,
		level:  l.level,
		target: l.target,
	}
}

func (l *Logger) enabled(level Level) bool {
	return l != nil && l.level >= level && l.target != nil
}

func (l *Logger) emit(level Level, line string) {
	if !l.enabled(level) {
		return
	}
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	l.target.Output(3, line)
}

// Error logs error information with an error prefix and red color.
func (l *Logger) Error(v ...interface{}) {
	l.emit(LevelError, color.RedString("error: %s", fmt.Sprint(v...)))
}

// Errorf logs formatted error information.
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.emit(LevelError, color.RedString("error: "+format, v...))
}

// Warn logs non-fatal error information with a yellow warning prefix.
func (l *Logger) Warn(v ...interface{}) {
	l.emit(LevelWarn, color.YellowString("warning: %s", fmt.Sprint(v...)))
}

// Warnf logs formatted non-fatal error information.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.emit(LevelWarn, color.YellowString("warning: "+format, v...))
}

// Info logs basic execution information.
func (l *Logger) Info(v ...interface{}) {
	l.emit(LevelInfo, fmt.Sprint(v...))
}

// Infof logs formatted basic execution information.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, v...))
}

// Debug logs advanced execution information.
func (l *Logger) Debug(v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprint(v...))
}

// Debugf logs formatted advanced execution information.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, v...))
}

// Trace logs low-level execution information.
func (l *Logger) Trace(v ...interface{}) {
	l.emit(LevelTrace, fmt.Sprint(v...))
}

// Tracef logs formatted low-level execution information.
func (l *Logger) Tracef(format string, v ...interface{}) {
	l.emit(LevelTrace, fmt.Sprintf(format, v...))
}
