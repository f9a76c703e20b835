package utils

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLogLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetLogLevel("INFO")

	SetLogLevel("WARN")
	buf.Reset()

	LogInfo("hidden info")
	LogWarnf("visible %s", "warning")
	LogErrorf("visible %d", 42)

	out := buf.String()
	if strings.Contains(out, "hidden info") {
		t.Errorf("info line should be filtered at WARN level, got %q", out)
	}
	if !strings.Contains(out, "visible warning") {
		t.Errorf("expected warning line, got %q", out)
	}
	if !strings.Contains(out, "visible 42") {
		t.Errorf("expected error line, got %q", out)
	}
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)

	SetLogLevel("chatty")
	LogDebug("debug line")
	LogInfo("info line")

	out := buf.String()
	if !strings.Contains(out, "Unknown log level 'chatty'") {
		t.Errorf("expected unknown-level warning, got %q", out)
	}
	if strings.Contains(out, "debug line") {
		t.Errorf("debug should be filtered at INFO, got %q", out)
	}
	if !strings.Contains(out, "info line") {
		t.Errorf("expected info line, got %q", out)
	}
}

func TestTickInterval(t *testing.T) {
	tests := []struct {
		rate int
		want time.Duration
	}{
		{60, time.Second / 60},
		{20, 50 * time.Millisecond},
		{0, time.Second / 60},
		{-5, time.Second / 60},
	}
	for _, tt := range tests {
		if got := TickInterval(tt.rate); got != tt.want {
			t.Errorf("TickInterval(%d) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}
