package rtc

import (
	"fmt"

	"github.com/pion/logging"
	"github.com/rs/zerolog"
)

// NewLoggerFactory routes pion's internal logs into zerolog. Each pion
// scope becomes a "pion.<scope>" module.
func NewLoggerFactory(base zerolog.Logger) logging.LoggerFactory {
	return &loggerFactory{base: base}
}

type loggerFactory struct {
	base zerolog.Logger
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{l: f.base.With().Str("module", "pion."+scope).Logger()}
}

type leveledLogger struct {
	l zerolog.Logger
}

func (z *leveledLogger) Trace(msg string) { z.l.Trace().Msg(msg) }
func (z *leveledLogger) Tracef(format string, args ...interface{}) {
	z.l.Trace().Msg(fmt.Sprintf(format, args...))
}
func (z *leveledLogger) Debug(msg string) { z.l.Debug().Msg(msg) }
func (z *leveledLogger) Debugf(format string, args ...interface{}) {
	z.l.Debug().Msg(fmt.Sprintf(format, args...))
}
func (z *leveledLogger) Info(msg string) { z.l.Info().Msg(msg) }
func (z *leveledLogger) Infof(format string, args ...interface{}) {
	z.l.Info().Msg(fmt.Sprintf(format, args...))
}
func (z *leveledLogger) Warn(msg string) { z.l.Warn().Msg(msg) }
func (z *leveledLogger) Warnf(format string, args ...interface{}) {
	z.l.Warn().Msg(fmt.Sprintf(format, args...))
}
func (z *leveledLogger) Error(msg string) { z.l.Error().Msg(msg) }
func (z *leveledLogger) Errorf(format string, args ...interface{}) {
	z.l.Error().Msg(fmt.Sprintf(format, args...))
}
