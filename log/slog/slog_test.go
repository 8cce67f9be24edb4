package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/unkn0wn-root/cachekit"
)

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(stdslog.New(stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelWarn})))

	l.Info("hidden", cachekit.Fields{"a": 1})
	l.Warn("write rejected by driver", cachekit.Fields{"driver": "ristretto", "key": "k"})

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("want exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "write rejected by driver" || rec["level"] != "WARN" {
		t.Fatalf("record=%v", rec)
	}
	if rec["driver"] != "ristretto" || rec["key"] != "k" || rec["component"] != "cachekit" {
		t.Fatalf("record=%v", rec)
	}
}
