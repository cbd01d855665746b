package webui

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"zero", 0, "0ms"},
		{"sub-second", 850 * time.Millisecond, "850ms"},
		{"one second", time.Second, "1s"},
		{"45 seconds", 45*time.Second + 300*time.Millisecond, "45s"},
		{"one minute", time.Minute, "1m 0s"},
		{"minutes and seconds", time.Minute + 30*time.Second, "1m 30s"},
		{"hours and minutes", 2*time.Hour + 34*time.Minute + 10*time.Second, "2h 34m"},
		{"one day", 24 * time.Hour, "1d 0h"},
		{"days and hours", 10*24*time.Hour + 5*time.Hour, "10d 5h"},
		{"negative", -5 * time.Minute, "-5m 0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatDuration(tt.duration); got != tt.expected {
				t.Errorf("FormatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}
