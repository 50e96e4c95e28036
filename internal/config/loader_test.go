// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader("").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 7443 {
		t.Errorf("Port = %d, want 7443", cfg.Port)
	}
	if cfg.Username != "administrator" {
		t.Errorf("Username = %q, want administrator", cfg.Username)
	}
	if cfg.OutputDir != "downloaded_clips" {
		t.Errorf("OutputDir = %q, want downloaded_clips", cfg.OutputDir)
	}
	if cfg.MaxConnections != 4 {
		t.Errorf("MaxConnections = %d, want 4", cfg.MaxConnections)
	}
	if cfg.MetadataDelay != 200*time.Millisecond {
		t.Errorf("MetadataDelay = %s, want 200ms", cfg.MetadataDelay)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %s, want 30s", cfg.RequestTimeout)
	}
	if cfg.TLSVerify {
		t.Error("TLSVerify should default to false for self-signed controllers")
	}
	if cfg.Timezone != "America/Denver" {
		t.Errorf("Timezone = %q, want America/Denver", cfg.Timezone)
	}
}

func TestLoadMergesFile(t *testing.T) {
	path := writeConfigFile(t, "uvcgrab.yaml", `
host: nvr.example.com
port: 8443
password: hunter2
maxConnections: 8
metadataDelay: 500ms
tlsVerify: true
`)

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Host != "nvr.example.com" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Port != 8443 {
		t.Errorf("Port = %d, want 8443", cfg.Port)
	}
	if cfg.MaxConnections != 8 {
		t.Errorf("MaxConnections = %d, want 8", cfg.MaxConnections)
	}
	if cfg.MetadataDelay != 500*time.Millisecond {
		t.Errorf("MetadataDelay = %s, want 500ms", cfg.MetadataDelay)
	}
	if !cfg.TLSVerify {
		t.Error("TLSVerify should be true from file")
	}
	// Untouched keys keep their defaults.
	if cfg.Username != "administrator" {
		t.Errorf("Username = %q, want the default", cfg.Username)
	}
}

func TestLoadFullFile(t *testing.T) {
	path := writeConfigFile(t, "uvcgrab.yaml", `
host: nvr.example.com
port: 8443
username: operator
password: hunter2
outputDir: /srv/clips
maxConnections: 8
chunkSize: 65536
metadataDelay: 500ms
requestTimeout: 45s
tlsVerify: true
timezone: Europe/Berlin
logLevel: debug
logJSON: true
debugListen: 127.0.0.1:9090
`)

	got, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Settings{
		Host:           "nvr.example.com",
		Port:           8443,
		Username:       "operator",
		Password:       "hunter2",
		OutputDir:      "/srv/clips",
		MaxConnections: 8,
		ChunkSize:      65536,
		MetadataDelay:  500 * time.Millisecond,
		RequestTimeout: 45 * time.Second,
		TLSVerify:      true,
		Timezone:       "Europe/Berlin",
		LogLevel:       "debug",
		LogJSON:        true,
		DebugListen:    "127.0.0.1:9090",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := writeConfigFile(t, "uvcgrab.yaml", `
host: from-file.example.com
port: 8443
`)
	t.Setenv(EnvHost, "from-env.example.com")
	t.Setenv(EnvMaxConnections, "16")

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Host != "from-env.example.com" {
		t.Errorf("Host = %q, environment must win over file", cfg.Host)
	}
	if cfg.Port != 8443 {
		t.Errorf("Port = %d, file must win over defaults", cfg.Port)
	}
	if cfg.MaxConnections != 16 {
		t.Errorf("MaxConnections = %d, want 16 from environment", cfg.MaxConnections)
	}
}

func TestLoadRejectsUnknownFileKeys(t *testing.T) {
	path := writeConfigFile(t, "uvcgrab.yaml", `
host: nvr.example.com
bogusKey: true
`)

	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected strict parsing to reject unknown keys")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfigFile(t, "uvcgrab.yaml", `
metadataDelay: half a second
`)

	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestLoadRejectsNonYAMLExtension(t *testing.T) {
	path := writeConfigFile(t, "uvcgrab.json", `{"host": "nvr"}`)

	if _, err := NewLoader(path).Load(); err == nil {
		t.Fatal("expected an error for a non-YAML config file")
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, "uvcgrab.yaml", "")

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7443 {
		t.Errorf("Port = %d, want the default", cfg.Port)
	}
}

func TestEnvParsersFallBackOnGarbage(t *testing.T) {
	t.Setenv(EnvPort, "not-a-number")
	t.Setenv(EnvTLSVerify, "not-a-bool")
	t.Setenv(EnvRequestTimeout, "soon")

	cfg, err := NewLoader("").Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 7443 {
		t.Errorf("Port = %d, want the default after a parse failure", cfg.Port)
	}
	if cfg.TLSVerify {
		t.Error("TLSVerify should keep its default after a parse failure")
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %s, want the default after a parse failure", cfg.RequestTimeout)
	}
}

func TestLoaderTracksConsumedEnvKeys(t *testing.T) {
	l := NewLoader("")
	if _, err := l.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, key := range []string{EnvHost, EnvPassword, EnvMetadataDelay} {
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			t.Errorf("ConsumedEnvKeys is missing %s", key)
		}
	}
}

func TestBaseURL(t *testing.T) {
	tests := []struct {
		name string
		host string
		port int
		want string
	}{
		{"hostname", "nvr.example.com", 7443, "https://nvr.example.com:7443"},
		{"ipv4", "192.168.1.10", 7443, "https://192.168.1.10:7443"},
		{"ipv6", "fd00::10", 7443, "https://[fd00::10]:7443"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Settings{Host: tt.host, Port: tt.port}
			if got := s.BaseURL(); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactedMasksPassword(t *testing.T) {
	s := Settings{Username: "administrator", Password: "hunter2"}
	r := s.Redacted()
	if r.Password != "***" {
		t.Errorf("Password = %q, want masked", r.Password)
	}
	if s.Password != "hunter2" {
		t.Error("Redacted must not mutate the original settings")
	}
	if r.Username != "administrator" {
		t.Error("non-sensitive fields must survive redaction")
	}
}
