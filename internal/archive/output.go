// SPDX-License-Identifier: MIT

package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/nvrtools/uvcgrab/internal/log"
)

// PrepareOutputDir ensures the archive root exists and is a directory.
func PrepareOutputDir(path string) error {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("output path %s exists and is not a directory", path)
		}
		return nil
	case os.IsNotExist(err):
		if err := os.MkdirAll(path, 0o750); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("stat output path: %w", err)
	}
}

// writeClip streams body into path atomically. The bytes land in a temp file
// that only replaces path after a full, fsynced copy, so an aborted transfer
// never leaves a partial clip behind.
func writeClip(path string, body io.Reader, chunkSize int) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return 0, fmt.Errorf("create camera directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(path)
	if err != nil {
		return 0, fmt.Errorf("create pending clip file: %w", err)
	}
	defer func() {
		// Cleanup on error - renameio removes the temp file if not committed
		if err := pending.Cleanup(); err != nil {
			logger := log.WithComponent("output")
			logger.Debug().Err(err).Msg("cleanup pending clip file")
		}
	}()

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(pending, body, buf)
	if err != nil {
		return n, fmt.Errorf("stream clip data: %w", err)
	}

	// CloseAtomicallyReplace: fsync + rename (durable + atomic)
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return n, fmt.Errorf("atomically replace clip file: %w", err)
	}
	return n, nil
}
