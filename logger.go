package adm

// Logger defines the logging interface used by adm components.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

// NoopLogger returns a Logger that discards everything.
func NoopLogger() Logger {
	return &noopLogger{}
}

func loggerOrNoop(l Logger) Logger {
	if l == nil {
		return &noopLogger{}
	}
	return l
}
