// SPDX-License-Identifier: MIT

// Package config loads uvcgrab settings with the precedence chain
// flags > environment > config file > defaults. The flag overlay is applied
// by the CLI; this package handles the other three layers.
package config

import (
	"net"
	"strconv"
	"time"
)

// Settings is the effective configuration after all layers are merged.
type Settings struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	OutputDir      string        `yaml:"outputDir"`
	MaxConnections int           `yaml:"maxConnections"`
	ChunkSize      int           `yaml:"chunkSize"`
	MetadataDelay  time.Duration `yaml:"metadataDelay"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	TLSVerify      bool          `yaml:"tlsVerify"`
	Timezone       string        `yaml:"timezone"`
	LogLevel       string        `yaml:"logLevel"`
	LogJSON        bool          `yaml:"logJSON"`
	DebugListen    string        `yaml:"debugListen"`
}

// Defaults returns the built-in settings: the controller's standard port,
// its factory admin account name and conservative pipeline limits.
func Defaults() Settings {
	return Settings{
		Port:           7443,
		Username:       "administrator",
		OutputDir:      "downloaded_clips",
		MaxConnections: 4,
		ChunkSize:      32 * 1024,
		MetadataDelay:  200 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		TLSVerify:      false,
		Timezone:       "America/Denver",
		LogLevel:       "info",
	}
}

// BaseURL assembles the controller root URL. Controllers only speak HTTPS.
func (s Settings) BaseURL() string {
	return "https://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Redacted returns a copy safe for logging, with the password masked.
func (s Settings) Redacted() Settings {
	if s.Password != "" {
		s.Password = "***"
	}
	return s
}
