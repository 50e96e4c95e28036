// SPDX-License-Identifier: MIT

package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvrtools/uvcgrab/internal/log"
	"github.com/nvrtools/uvcgrab/internal/uvc"
)

// downloadPool fans clips out to at most cfg.MaxConnections concurrent
// workers. The errgroup limit is the only concurrency bound; the HTTP
// transport is sized to the same number, so a worker never queues on a
// connection it was admitted for.
type downloadPool struct {
	c        Controller
	cfg      Config
	progress Progress

	mu      sync.Mutex
	results map[string]DownloadResult
}

func newDownloadPool(c Controller, cfg Config, progress Progress) *downloadPool {
	return &downloadPool{
		c:        c,
		cfg:      cfg,
		progress: progress,
		results:  make(map[string]DownloadResult),
	}
}

// run downloads every clip and waits for all workers to finish. Per-clip
// failures are recorded and do not stop the run; an authentication failure
// cancels the group because every remaining download would fail the same
// way. The returned error is that systemic failure, or nil.
func (p *downloadPool) run(ctx context.Context, clips map[string]Clip, order []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConnections)

	for _, id := range order {
		clip := clips[id]
		if gctx.Err() != nil {
			p.recordSkip(clip, context.Cause(gctx))
			continue
		}
		g.Go(func() error {
			// Admission can race with cancellation; a worker that starts
			// after the group died must not open a new download.
			if gctx.Err() != nil {
				p.recordSkip(clip, context.Cause(gctx))
				return nil
			}
			res := p.fetchOne(gctx, clip)
			p.record(res)
			if errors.Is(res.Err, uvc.ErrAuth) {
				return res.Err
			}
			return nil
		})
	}
	return g.Wait()
}

// fetchOne streams a single clip to disk and returns its terminal record.
func (p *downloadPool) fetchOne(ctx context.Context, clip Clip) DownloadResult {
	ctx = log.ContextWithClipID(ctx, clip.ID)
	logger := log.WithComponentFromContext(ctx, "download")

	res := DownloadResult{
		ClipID: clip.ID,
		Camera: clip.CameraName,
		Path:   clipPath(p.cfg.OutputDir, clip),
	}

	p.progress.DownloadStarted(clip)
	downloadsInflight.Inc()
	defer downloadsInflight.Dec()

	start := time.Now()
	body, size, err := p.c.OpenRecording(ctx, clip.ID)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		res.Duration = time.Since(start)
		logger.Error().Err(err).Msg("download.failed")
		return res
	}
	defer body.Close()

	n, err := writeClip(res.Path, body, p.cfg.ChunkSize)
	res.Bytes = n
	res.Duration = time.Since(start)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		logger.Error().Err(err).Int64("bytes", n).Msg("download.failed")
		return res
	}

	res.Outcome = OutcomeSuccess
	logger.Info().
		Str("camera", clip.CameraName).
		Str("path", res.Path).
		Int64("bytes", n).
		Int64("expected_bytes", size).
		Dur("elapsed", res.Duration).
		Msg("download.done")
	return res
}

func (p *downloadPool) record(res DownloadResult) {
	downloadsTotal.WithLabelValues(string(res.Outcome)).Inc()
	if res.Outcome == OutcomeSuccess {
		downloadBytesTotal.Add(float64(res.Bytes))
	}
	p.mu.Lock()
	p.results[res.ClipID] = res
	p.mu.Unlock()
	p.progress.DownloadFinished(res)
}

func (p *downloadPool) recordSkip(clip Clip, cause error) {
	p.record(DownloadResult{
		ClipID:  clip.ID,
		Camera:  clip.CameraName,
		Path:    clipPath(p.cfg.OutputDir, clip),
		Outcome: OutcomeSkipped,
		Err:     cause,
	})
}

// snapshot copies the result map for reporting after the pool has drained.
func (p *downloadPool) snapshot() map[string]DownloadResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]DownloadResult, len(p.results))
	for k, v := range p.results {
		out[k] = v
	}
	return out
}
