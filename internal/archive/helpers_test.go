// SPDX-License-Identifier: MIT

package archive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nvrtools/uvcgrab/internal/uvc"
)

// Camera and recording IDs installed by uvc.MockNVR's default data set.
const (
	camFront  = "5a0aa2f9e4b0d3b9a1e8c001"
	camBack   = "5a0aa2f9e4b0d3b9a1e8c002"
	recFront1 = "5bb78f2ce4b0a2d8f1c30a01" // Front Door, 06:00:00 UTC
	recFront2 = "5bb78f2ce4b0a2d8f1c30a02" // Front Door, 06:15:00 UTC
	recBack1  = "5bb78f2ce4b0a2d8f1c30a03" // Back Yard, 06:05:00 UTC

	winStart = int64(1538718000000)
	winEnd   = int64(1538721600000)

	// Size of the default payload the mock serves per recording.
	defaultPayloadLen = int64(29 * 64)
)

func newTestController(t *testing.T, m *uvc.MockNVR) *uvc.Client {
	t.Helper()
	c, err := uvc.New(uvc.Options{
		BaseURL:  m.URL(),
		Username: "administrator",
		Password: "changeme",
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func mustLogin(t *testing.T, ctx context.Context, c *uvc.Client) {
	t.Helper()
	require.NoError(t, c.Login(ctx))
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		OutputDir:      t.TempDir(),
		StartMS:        winStart,
		EndMS:          winEnd,
		MaxConnections: 2,
		ChunkSize:      DefaultChunkSize,
		RequestTimeout: 5 * time.Second,
	}
}

func testCatalog() map[string]uvc.Camera {
	return map[string]uvc.Camera{
		camFront: {ID: camFront, Name: "Front Door"},
		camBack:  {ID: camBack, Name: "Back Yard"},
	}
}

// defaultClips mirrors the mock's default recordings in search order, newest
// start time first.
func defaultClips(t *testing.T) (map[string]Clip, []string) {
	t.Helper()
	clips := map[string]Clip{
		recFront2: {ID: recFront2, CameraID: camFront, CameraName: "Front Door", StartTime: 1538720100000},
		recBack1:  {ID: recBack1, CameraID: camBack, CameraName: "Back Yard", StartTime: 1538719500000},
		recFront1: {ID: recFront1, CameraID: camFront, CameraName: "Front Door", StartTime: 1538719200000},
	}
	for id, clip := range clips {
		clip.FileName = ClipFileName(clip.StartTime, clip.CameraName)
		clips[id] = clip
	}
	return clips, []string{recFront2, recBack1, recFront1}
}

// progressRecorder captures pipeline milestones for assertions.
type progressRecorder struct {
	mu       sync.Mutex
	resolved []string
	started  []string
	finished []DownloadResult
}

func (p *progressRecorder) ClipResolved(clip Clip, _, _ int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, clip.ID)
}

func (p *progressRecorder) DownloadStarted(clip Clip) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, clip.ID)
}

func (p *progressRecorder) DownloadFinished(res DownloadResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = append(p.finished, res)
}

func (p *progressRecorder) finishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.finished)
}
