package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New("info", "json", &buf)
	logger.Debug("hidden")
	logger.Info("shown", "license_id", "lic-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line above debug level, got %d", len(lines))
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["msg"] != "shown" || record["license_id"] != "lic-1" || record["service"] != "kioskguard" {
		t.Fatalf("unexpected record %+v", record)
	}
}

func TestGormLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewGormLogger(New("debug", "text", &buf), 10*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	logger.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Fatalf("record not found should not be logged, got %q", buf.String())
	}

	logger.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	if !strings.Contains(buf.String(), "sql error") {
		t.Fatalf("expected sql error line, got %q", buf.String())
	}

	buf.Reset()
	logger.Trace(context.Background(), time.Now().Add(-time.Second), sql, nil)
	if !strings.Contains(buf.String(), "slow sql") {
		t.Fatalf("expected slow sql line, got %q", buf.String())
	}

	buf.Reset()
	silent := logger.LogMode(gormlogger.Silent)
	silent.Trace(context.Background(), time.Now().Add(-time.Second), sql, errors.New("boom"))
	if buf.Len() != 0 {
		t.Fatalf("silent mode should not log, got %q", buf.String())
	}
}
