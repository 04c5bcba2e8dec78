package core

import "github.com/convomesh/convomesh/logging"

// loggerAdapter gives context types embedded Log* helpers backed by a
// guaranteed non-nil logging.Logger.
type loggerAdapter struct {
	logger logging.Logger
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		return &loggerAdapter{logger: logging.NoOpLogger{}}
	}
	return &loggerAdapter{logger: l}
}

// Logger exposes the wrapped logger for callers that need to pass it on.
func (l *loggerAdapter) Logger() logging.Logger { return l.logger }

func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *loggerAdapter) LogInfo(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *loggerAdapter) LogWarn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, args...) }
