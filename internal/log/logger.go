// SPDX-License-Identifier: MIT

// Package log configures the process-wide zerolog logger and hands out
// component-scoped child loggers.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Console bool      // render human-readable console lines instead of JSON
	Service string    // optional service name attached to every log entry
	Version string    // optional build version attached to every log entry
}

var (
	mu         sync.Mutex
	base       zerolog.Logger
	configured bool
)

// Configure applies cfg to the process-wide logger. The last call wins: the
// CLI configures safe defaults first and configures again once the merged
// configuration is known. Packages that log before any Configure call get
// the defaults.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	base = newLogger(cfg)
	configured = true
}

func newLogger(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("UVCGRAB_LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}
	if cfg.Console {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: "15:04:05"}
	}

	service := cfg.Service
	if service == "" {
		service = "uvcgrab"
	}

	ctx := zerolog.New(writer).With().
		Timestamp().
		Str("service", service)
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	return ctx.Logger()
}

func logger() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if !configured {
		base = newLogger(Config{})
		configured = true
	}
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str("component", component).Logger()
}

// Derive attaches arbitrary fields to a child logger using the provided builder function.
func Derive(build func(*zerolog.Context)) zerolog.Logger {
	ctx := logger().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}
