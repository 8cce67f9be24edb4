// Package zap adapts a *zap.Logger to cachekit.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/cachekit"
)

var _ cachekit.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l. A nil l discards everything.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l.With(zap.String("component", "cachekit"))}
}

func (z Logger) Debug(msg string, f cachekit.Fields) { z.log(zapcore.DebugLevel, msg, f) }
func (z Logger) Info(msg string, f cachekit.Fields)  { z.log(zapcore.InfoLevel, msg, f) }
func (z Logger) Warn(msg string, f cachekit.Fields)  { z.log(zapcore.WarnLevel, msg, f) }
func (z Logger) Error(msg string, f cachekit.Fields) { z.log(zapcore.ErrorLevel, msg, f) }

// log skips field conversion when the level is disabled.
func (z Logger) log(lvl zapcore.Level, msg string, f cachekit.Fields) {
	ce := z.L.Check(lvl, msg)
	if ce == nil {
		return
	}
	ce.Write(fields(f)...)
}

func fields(f cachekit.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	names := make([]string, 0, len(f))
	for k := range f {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]zap.Field, 0, len(f))
	for _, k := range names {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
