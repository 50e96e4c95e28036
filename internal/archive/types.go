// SPDX-License-Identifier: MIT

// Package archive drives the retrieval pipeline: open a controller session,
// resolve cameras, search and resolve recordings, then download footage with
// a bounded worker pool.
package archive

import (
	"context"
	"io"
	"time"

	"github.com/nvrtools/uvcgrab/internal/uvc"
)

// Default pipeline limits. The CLI and config layers feed these through;
// they live here so library callers get sane behavior too.
const (
	DefaultMaxConnections = 4
	DefaultChunkSize      = 32 * 1024
	DefaultRequestTimeout = 30 * time.Second
	DefaultMetadataDelay  = 200 * time.Millisecond
)

// Config describes one pipeline run.
type Config struct {
	// BaseURL is the controller root, e.g. "https://nvr.local:7443".
	BaseURL  string
	Username string
	Password string

	// CameraNames are the display names to archive. Every name must match a
	// catalog camera or the run fails before searching.
	CameraNames []string

	// Search window in epoch milliseconds, start inclusive.
	StartMS int64
	EndMS   int64

	// OutputDir is the archive root; each camera gets a subdirectory.
	OutputDir string

	// MaxConnections is the download worker count W. The HTTP transport is
	// sized to exactly W connections, so W also caps controller load.
	MaxConnections int

	// ChunkSize is the copy buffer size for streaming downloads.
	ChunkSize int

	// MetadataDelay spaces the serial metadata requests. Zero disables the
	// pacing entirely.
	MetadataDelay time.Duration

	// RequestTimeout bounds each control-plane request. Downloads are only
	// bounded by run cancellation.
	RequestTimeout time.Duration

	TLSVerify bool

	// DryRun stops after metadata resolution and reports what would be
	// downloaded. No pool is built and nothing is written.
	DryRun bool

	UserAgent string
}

// Controller is the slice of the uvc client the pipeline needs. Runs inject
// a real client; tests inject fakes.
type Controller interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Bootstrap(ctx context.Context) (map[string]uvc.Camera, error)
	SearchRecordings(ctx context.Context, startMS, endMS int64, cameraIDs []string) ([]string, error)
	RecordingDetail(ctx context.Context, id string) (uvc.RecordingMeta, error)
	OpenRecording(ctx context.Context, id string) (io.ReadCloser, int64, error)
	Close()
}

// Clip is one downloadable recording after metadata resolution. Values are
// set once by the resolver and never mutated.
type Clip struct {
	ID              string
	CameraID        string
	CameraName      string
	StartTime       int64 // epoch milliseconds
	EndTime         int64 // epoch milliseconds
	EventType       string
	Locked          bool
	RecordingPathID string

	// FileName is the derived on-disk name, relative to the camera
	// subdirectory.
	FileName string
}

// Outcome classifies a clip's terminal state.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// DownloadResult is the terminal record for one clip.
type DownloadResult struct {
	ClipID   string
	Camera   string
	Path     string
	Bytes    int64
	Duration time.Duration
	Outcome  Outcome
	Err      error
}

// Report summarises a pipeline run. Results is keyed by clip ID; Order holds
// the IDs in controller search order (newest first) for stable iteration.
type Report struct {
	ClipsFound   int
	ClipsQueued  int
	Succeeded    int
	Failed       int
	Skipped      int
	BytesWritten int64
	Elapsed      time.Duration
	DryRun       bool
	Results      map[string]DownloadResult
	Order        []string
}

// Progress receives pipeline milestones. Implementations must be safe for
// concurrent DownloadStarted/DownloadFinished calls from pool workers.
type Progress interface {
	ClipResolved(clip Clip, index, total int)
	DownloadStarted(clip Clip)
	DownloadFinished(result DownloadResult)
}

// NopProgress discards all milestones.
type NopProgress struct{}

func (NopProgress) ClipResolved(Clip, int, int)     {}
func (NopProgress) DownloadStarted(Clip)            {}
func (NopProgress) DownloadFinished(DownloadResult) {}
