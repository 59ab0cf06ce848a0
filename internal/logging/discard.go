package logging

// DiscardLogger is a no-op Logger, for callers that want no log output.
// It is not the fallback for a nil Logger: OrDefault returns a WARN-level
// DefaultLogger writing to stderr in that case.
type DiscardLogger struct{}

// Discard is the singleton discard logger.
var Discard Logger = &DiscardLogger{}

// Errorf implements Logger.
func (l *DiscardLogger) Errorf(format string, args ...any) {}

// Warnf implements Logger.
func (l *DiscardLogger) Warnf(format string, args ...any) {}

// Infof implements Logger.
func (l *DiscardLogger) Infof(format string, args ...any) {}

// Debugf implements Logger.
func (l *DiscardLogger) Debugf(format string, args ...any) {}

// Fatalf implements Logger.
func (l *DiscardLogger) Fatalf(format string, args ...any) {}
