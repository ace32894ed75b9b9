// Package linklog provides the leveled logger interface used across this
// module. The interface shape mirrors go-mcast's types.Logger
// (Infof/Warnf/Errorf/Debugf with a toggleable debug level); the default
// implementation is backed by logrus instead of the standard library's
// log.Logger.
package linklog

import "github.com/sirupsen/logrus"

// Logger is the leveled logging interface every component in this module
// depends on instead of the concrete logging library.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// logrusLogger adapts a *logrus.Logger (or Entry) to Logger.
type logrusLogger struct {
	entry *logrus.Entry
}

// New builds the default Logger, writing structured fields through logrus.
func New(component string) Logger {
	base := logrus.New()
	return &logrusLogger{entry: base.WithField("component", component)}
}

// NewWith wraps an existing *logrus.Logger, useful when a host process
// wants every component to share one logrus configuration (formatter,
// output, hooks).
func NewWith(base *logrus.Logger, component string) Logger {
	return &logrusLogger{entry: base.WithField("component", component)}
}

func (l *logrusLogger) Infof(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warnf(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

// Noop is a Logger that discards everything, useful for tests that don't
// want log noise but still need to satisfy the interface.
var Noop Logger = noopLogger{}

type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
func (noopLogger) Debugf(string, ...interface{}) {}
