// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names consumed by the loader.
const (
	EnvHost           = "UVCGRAB_HOST"
	EnvPort           = "UVCGRAB_PORT"
	EnvUsername       = "UVCGRAB_USERNAME"
	EnvPassword       = "UVCGRAB_PASSWORD"
	EnvOutputDir      = "UVCGRAB_OUTPUT_DIR"
	EnvMaxConnections = "UVCGRAB_MAX_CONNECTIONS"
	EnvChunkSize      = "UVCGRAB_CHUNK_SIZE"
	EnvMetadataDelay  = "UVCGRAB_METADATA_DELAY"
	EnvRequestTimeout = "UVCGRAB_REQUEST_TIMEOUT"
	EnvTLSVerify      = "UVCGRAB_TLS_VERIFY"
	EnvTimezone       = "UVCGRAB_TIMEZONE"
	EnvLogLevel       = "UVCGRAB_LOG_LEVEL"
	EnvLogJSON        = "UVCGRAB_LOG_JSON"
	EnvDebugListen    = "UVCGRAB_DEBUG_LISTEN"
)

// FileConfig is the YAML file shape. Pointer fields distinguish "absent"
// from zero values, and durations arrive as strings ("200ms", "30s").
type FileConfig struct {
	Host           *string `yaml:"host"`
	Port           *int    `yaml:"port"`
	Username       *string `yaml:"username"`
	Password       *string `yaml:"password"`
	OutputDir      *string `yaml:"outputDir"`
	MaxConnections *int    `yaml:"maxConnections"`
	ChunkSize      *int    `yaml:"chunkSize"`
	MetadataDelay  *string `yaml:"metadataDelay"`
	RequestTimeout *string `yaml:"requestTimeout"`
	TLSVerify      *bool   `yaml:"tlsVerify"`
	Timezone       *string `yaml:"timezone"`
	LogLevel       *string `yaml:"logLevel"`
	LogJSON        *bool   `yaml:"logJSON"`
	DebugListen    *string `yaml:"debugListen"`
}

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Load loads configuration with precedence: ENV > File > Defaults.
// The CLI applies explicit flags on top of the result.
func (l *Loader) Load() (Settings, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge config file: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

func mergeFileConfig(cfg *Settings, file *FileConfig) error {
	if file.Host != nil {
		cfg.Host = *file.Host
	}
	if file.Port != nil {
		cfg.Port = *file.Port
	}
	if file.Username != nil {
		cfg.Username = *file.Username
	}
	if file.Password != nil {
		cfg.Password = *file.Password
	}
	if file.OutputDir != nil {
		cfg.OutputDir = *file.OutputDir
	}
	if file.MaxConnections != nil {
		cfg.MaxConnections = *file.MaxConnections
	}
	if file.ChunkSize != nil {
		cfg.ChunkSize = *file.ChunkSize
	}
	if file.MetadataDelay != nil {
		d, err := time.ParseDuration(*file.MetadataDelay)
		if err != nil {
			return fmt.Errorf("metadataDelay: %w", err)
		}
		cfg.MetadataDelay = d
	}
	if file.RequestTimeout != nil {
		d, err := time.ParseDuration(*file.RequestTimeout)
		if err != nil {
			return fmt.Errorf("requestTimeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if file.TLSVerify != nil {
		cfg.TLSVerify = *file.TLSVerify
	}
	if file.Timezone != nil {
		cfg.Timezone = *file.Timezone
	}
	if file.LogLevel != nil {
		cfg.LogLevel = *file.LogLevel
	}
	if file.LogJSON != nil {
		cfg.LogJSON = *file.LogJSON
	}
	if file.DebugListen != nil {
		cfg.DebugListen = *file.DebugListen
	}
	return nil
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) mergeEnvConfig(cfg *Settings) {
	cfg.Host = l.envString(EnvHost, cfg.Host)
	cfg.Port = l.envInt(EnvPort, cfg.Port)
	cfg.Username = l.envString(EnvUsername, cfg.Username)
	cfg.Password = l.envString(EnvPassword, cfg.Password)
	cfg.OutputDir = l.envString(EnvOutputDir, cfg.OutputDir)
	cfg.MaxConnections = l.envInt(EnvMaxConnections, cfg.MaxConnections)
	cfg.ChunkSize = l.envInt(EnvChunkSize, cfg.ChunkSize)
	cfg.MetadataDelay = l.envDuration(EnvMetadataDelay, cfg.MetadataDelay)
	cfg.RequestTimeout = l.envDuration(EnvRequestTimeout, cfg.RequestTimeout)
	cfg.TLSVerify = l.envBool(EnvTLSVerify, cfg.TLSVerify)
	cfg.Timezone = l.envString(EnvTimezone, cfg.Timezone)
	cfg.LogLevel = l.envString(EnvLogLevel, cfg.LogLevel)
	cfg.LogJSON = l.envBool(EnvLogJSON, cfg.LogJSON)
	cfg.DebugListen = l.envString(EnvDebugListen, cfg.DebugListen)
}
