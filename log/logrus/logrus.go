// Package logrus adapts logrus to cachekit.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/cachekit"
)

var _ cachekit.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New wraps l, tagging every entry with component=cachekit. A nil l uses the
// logrus standard logger.
func New(l *logrus.Logger) Logger {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logger{E: l.WithField("component", "cachekit")}
}

func (l Logger) Debug(msg string, f cachekit.Fields) { l.log(logrus.DebugLevel, msg, f) }
func (l Logger) Info(msg string, f cachekit.Fields)  { l.log(logrus.InfoLevel, msg, f) }
func (l Logger) Warn(msg string, f cachekit.Fields)  { l.log(logrus.WarnLevel, msg, f) }
func (l Logger) Error(msg string, f cachekit.Fields) { l.log(logrus.ErrorLevel, msg, f) }

func (l Logger) log(lvl logrus.Level, msg string, f cachekit.Fields) {
	if !l.E.Logger.IsLevelEnabled(lvl) {
		return
	}
	e := l.E
	if len(f) > 0 {
		e = e.WithFields(logrus.Fields(f))
	}
	e.Log(lvl, msg)
}
