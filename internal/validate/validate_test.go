// SPDX-License-Identifier: MIT
package validate

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidator_URL(t *testing.T) {
	tests := []struct {
		name           string
		value          string
		allowedSchemes []string
		wantErr        bool
	}{
		{"valid http", "http://example.com", []string{"http", "https"}, false},
		{"valid https", "https://nvr.local:7443", []string{"http", "https"}, false},
		{"empty url", "", []string{"http"}, true},
		{"no host", "http://", []string{"http"}, true},
		{"invalid scheme", "ftp://example.com", []string{"http", "https"}, true},
		{"no scheme", "example.com", []string{"http"}, true},
		{"with port", "http://example.com:8080", []string{"http"}, false},
		{"with path", "http://example.com/path", []string{"http"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.URL("testURL", tt.value, tt.allowedSchemes)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Port(t *testing.T) {
	tests := []struct {
		name    string
		port    int
		wantErr bool
	}{
		{"valid port 80", 80, false},
		{"valid port 7443", 7443, false},
		{"valid port 65535", 65535, false},
		{"valid port 1", 1, false},
		{"invalid port 0", 0, true},
		{"invalid port -1", -1, true},
		{"invalid port 65536", 65536, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Port("testPort", tt.port)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Range(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		min     int
		max     int
		wantErr bool
	}{
		{"in range", 5, 1, 10, false},
		{"at min", 1, 1, 10, false},
		{"at max", 10, 1, 10, false},
		{"below min", 0, 1, 10, true},
		{"above max", 11, 1, 10, true},
		{"connection range", 4, 1, 1000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Range("testRange", tt.value, tt.min, tt.max)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_NotEmpty(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"non-empty", "administrator", false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"tab and newline", "\t\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.NotEmpty("testField", tt.value)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_Durations(t *testing.T) {
	tests := []struct {
		name        string
		value       time.Duration
		nonNegative bool
		wantErr     bool
	}{
		{"positive ok", 30 * time.Second, false, false},
		{"zero rejected as positive", 0, false, true},
		{"negative rejected as positive", -time.Second, false, true},
		{"zero ok as non-negative", 0, true, false},
		{"negative rejected as non-negative", -time.Millisecond, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			if tt.nonNegative {
				v.NonNegativeDuration("testDuration", tt.value)
			} else {
				v.PositiveDuration("testDuration", tt.value)
			}

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_TimeWindow(t *testing.T) {
	tests := []struct {
		name    string
		startMS int64
		endMS   int64
		wantErr bool
	}{
		{"valid window", 1538719200000, 1538720200000, false},
		{"equal stamps", 1538719200000, 1538719200000, true},
		{"inverted window", 1538720200000, 1538719200000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.TimeWindow("window", tt.startMS, tt.endMS)

			if tt.wantErr && v.IsValid() {
				t.Errorf("expected error, got none")
			}
			if !tt.wantErr && !v.IsValid() {
				t.Errorf("unexpected error: %v", v.Err())
			}
		})
	}
}

func TestValidator_AccumulatesErrors(t *testing.T) {
	v := New()
	v.NotEmpty("username", "")
	v.Port("port", 0)
	v.Range("maxConnections", 5000, 1, 1000)

	if v.IsValid() {
		t.Fatal("expected validator to be invalid")
	}
	if got := len(v.Errors()); got != 3 {
		t.Fatalf("expected 3 errors, got %d", got)
	}

	err := v.Err()
	if err == nil {
		t.Fatal("Err() returned nil for invalid validator")
	}

	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Err() should return a ValidationError, got %T", err)
	}
	if len(verr.Errors()) != 3 {
		t.Fatalf("ValidationError should carry 3 errors, got %d", len(verr.Errors()))
	}
	if !strings.Contains(err.Error(), "username") {
		t.Errorf("error string should mention the failing field, got %q", err.Error())
	}
}

func TestValidator_ErrNilWhenValid(t *testing.T) {
	v := New()
	v.NotEmpty("username", "administrator")
	v.Port("port", 7443)

	if err := v.Err(); err != nil {
		t.Fatalf("Err() should be nil for a valid config, got %v", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"trace", false},
		{"debug", false},
		{"info", false},
		{"warn", false},
		{"error", false},
		{"verbose", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if level.String() != tt.input {
				t.Errorf("String() = %q, want %q", level.String(), tt.input)
			}
		})
	}
}
