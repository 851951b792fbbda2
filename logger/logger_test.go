package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("failed to decode log line %q: %v", line, err)
	}
	return m
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "debug", Format: FormatJSON}, "guard", &buf)

	l.WithComponent("bulkhead").Info("call rejected", Fields(FieldBulkhead, "third_party_feed", FieldReason, "queue_full"))

	m := decodeLine(t, &buf)
	if m["message"] != "call rejected" {
		t.Errorf("expected message, got %v", m["message"])
	}
	if m[FieldService] != "guard" {
		t.Errorf("expected service field, got %v", m[FieldService])
	}
	if m[FieldComponent] != "bulkhead" {
		t.Errorf("expected component field, got %v", m[FieldComponent])
	}
	if m[FieldBulkhead] != "third_party_feed" {
		t.Errorf("expected bulkhead field, got %v", m[FieldBulkhead])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "warn", Format: FormatJSON}, "guard", &buf)

	l.Debug("hidden")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected nothing below warn, got %q", buf.String())
	}

	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn line, got %q", buf.String())
	}
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "invalid-level"}, "test", &buf)
	l.Debug("hidden")
	l.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected info level, got %q", buf.String())
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info"}, "test", &buf)
	l.WithError(errors.New("boom")).Error("failed")

	m := decodeLine(t, &buf)
	if m["error"] != "boom" {
		t.Errorf("expected error field, got %v", m["error"])
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info"}, "test", &buf)
	l.WithFields(map[string]interface{}{FieldResource: "ofac"}).Info("ok")

	m := decodeLine(t, &buf)
	if m[FieldResource] != "ofac" {
		t.Errorf("expected resource field, got %v", m[FieldResource])
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("discarded", Fields("k", "v"))
	l.WithComponent("x").Error("discarded")
}

func TestNewFromEnv(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "json")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("LOG_FORMAT")

	if l := NewFromEnv("env-svc"); l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestFields(t *testing.T) {
	m := Fields("a", 1, "b", "two", 3, "ignored", "dangling")
	if len(m) != 2 {
		t.Errorf("expected 2 fields, got %d: %v", len(m), m)
	}
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("unexpected fields %v", m)
	}
}

func TestErrorFieldsAndDuration(t *testing.T) {
	f := ErrorFields("execute", errors.New("nope"))
	if f[FieldError] != "nope" || f[FieldOperation] != "execute" {
		t.Errorf("unexpected %v", f)
	}

	d := MergeWithDuration(nil, 1500*time.Millisecond)
	if d[FieldDuration] != int64(1500) {
		t.Errorf("expected 1500, got %v", d[FieldDuration])
	}
}

func TestConfig_ApplyDefaultsAndValidate(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != FormatJSON || cfg.Output != "stdout" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	bad := Config{Level: "loud", Format: FormatJSON, Output: "stdout"}
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "logging.level") {
		t.Errorf("expected level error, got %v", err)
	}
	bad = Config{Level: "info", Format: "xml", Output: "stdout"}
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "logging.format") {
		t.Errorf("expected format error, got %v", err)
	}
}
