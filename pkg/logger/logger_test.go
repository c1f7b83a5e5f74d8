package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCronLoggerError(t *testing.T) {
	var buf bytes.Buffer
	l := &CronLogger{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	l.Error(errors.New("boom"), "job failed", "entry", 1)

	out := buf.String()
	if !strings.Contains(out, "job failed") || !strings.Contains(out, "error=boom") {
		t.Errorf("unexpected log output: %s", out)
	}
}
