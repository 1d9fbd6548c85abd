package tasks

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// temporalLogger adapts zap to the Temporal SDK logger.
type temporalLogger struct {
	z *zap.SugaredLogger
}

func newTemporalLogger(z *zap.Logger) log.Logger {
	return &temporalLogger{z: z.With(zap.String("component", "temporal")).Sugar()}
}

func (l *temporalLogger) Debug(msg string, keyvals ...any) { l.z.Debugw(msg, keyvals...) }
func (l *temporalLogger) Info(msg string, keyvals ...any)  { l.z.Infow(msg, keyvals...) }
func (l *temporalLogger) Warn(msg string, keyvals ...any)  { l.z.Warnw(msg, keyvals...) }
func (l *temporalLogger) Error(msg string, keyvals ...any) { l.z.Errorw(msg, keyvals...) }
