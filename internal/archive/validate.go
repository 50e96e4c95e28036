// SPDX-License-Identifier: MIT

package archive

import (
	"github.com/nvrtools/uvcgrab/internal/validate"
)

// applyDefaults fills the zero-value knobs a caller left unset.
func applyDefaults(cfg Config) Config {
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return cfg
}

func validateConfig(cfg Config) error {
	v := validate.New()
	v.URL("base_url", cfg.BaseURL, []string{"http", "https"})
	v.NotEmpty("username", cfg.Username)
	v.NotEmpty("password", cfg.Password)
	v.NotEmpty("output_dir", cfg.OutputDir)
	v.TimeWindow("window", cfg.StartMS, cfg.EndMS)
	v.Range("max_connections", cfg.MaxConnections, 1, 1000)
	v.Positive("chunk_size", cfg.ChunkSize)
	v.NonNegativeDuration("metadata_delay", cfg.MetadataDelay)
	v.PositiveDuration("request_timeout", cfg.RequestTimeout)
	return v.Err()
}
