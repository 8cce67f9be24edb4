package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/cachekit"
)

func TestLoggerLevelsAndFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.InfoLevel)
	l := New(base)

	l.Debug("hidden", nil)
	l.Error("lock release failed", cachekit.Fields{"key": "lock:k"})

	if n := len(hook.AllEntries()); n != 1 {
		t.Fatalf("entries=%d want 1", n)
	}
	e := hook.LastEntry()
	if e.Level != logrus.ErrorLevel || e.Message != "lock release failed" {
		t.Fatalf("entry level=%s msg=%q", e.Level, e.Message)
	}
	if e.Data["key"] != "lock:k" || e.Data["component"] != "cachekit" {
		t.Fatalf("data=%v", e.Data)
	}
}
