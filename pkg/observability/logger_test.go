package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func parseEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	t.Run("debug not logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Debug("debug message")
		if buf.Len() > 0 {
			t.Error("Debug message should not be logged at Info level")
		}
	})

	t.Run("info logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Info("info message")
		if buf.Len() == 0 {
			t.Fatal("Info message should be logged at Info level")
		}

		entry := parseEntry(t, &buf)
		if entry["level"] != "INFO" {
			t.Errorf("Expected level INFO, got %v", entry["level"])
		}
		if entry["msg"] != "info message" {
			t.Errorf("Expected message 'info message', got %v", entry["msg"])
		}
	})

	t.Run("warn logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Warn("warn message")
		if buf.Len() == 0 {
			t.Error("Warn message should be logged at Info level")
		}
	})

	t.Run("error logged at info level", func(t *testing.T) {
		buf.Reset()
		logger.Error("error message")
		if buf.Len() == 0 {
			t.Error("Error message should be logged at Info level")
		}
	})

	t.Run("info not logged at error level", func(t *testing.T) {
		var errBuf bytes.Buffer
		errLogger := NewLogger(ErrorLevel, &errBuf)
		errLogger.Info("info message")
		if errBuf.Len() > 0 {
			t.Error("Info message should not be logged at Error level")
		}
	})
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithField("run_id", "abc-123").Info("run started")

	entry := parseEntry(t, &buf)
	if entry["run_id"] != "abc-123" {
		t.Errorf("Expected run_id field, got %v", entry["run_id"])
	}
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithFields(map[string]interface{}{
		"pages": 3,
		"rows":  25,
	}).Info("run complete")

	entry := parseEntry(t, &buf)
	if entry["pages"] != float64(3) {
		t.Errorf("Expected pages field 3, got %v", entry["pages"])
	}
	if entry["rows"] != float64(25) {
		t.Errorf("Expected rows field 25, got %v", entry["rows"])
	}
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("connection refused")).Error("run failed")

	entry := parseEntry(t, &buf)
	if entry["error"] != "connection refused" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
}

func TestLogger_WithErrorNil(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(nil).Info("all fine")

	entry := parseEntry(t, &buf)
	if _, ok := entry["error"]; ok {
		t.Error("Expected no error field for nil error")
	}
}

func TestLogger_Formatted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Infof("drained %d pages", 7)

	entry := parseEntry(t, &buf)
	if entry["msg"] != "drained 7 pages" {
		t.Errorf("Expected formatted message, got %v", entry["msg"])
	}
}

func TestLogLevel_String(t *testing.T) {
	cases := map[LogLevel]string{
		DebugLevel: "DEBUG",
		InfoLevel:  "INFO",
		WarnLevel:  "WARN",
		ErrorLevel: "ERROR",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("LogLevel(%d).String() = %q, want %q", level, got, want)
		}
	}
}
