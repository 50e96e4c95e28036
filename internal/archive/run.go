// SPDX-License-Identifier: MIT

package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/nvrtools/uvcgrab/internal/log"
	"github.com/nvrtools/uvcgrab/internal/uvc"
)

// Run executes one archive pipeline end to end: login, camera catalog,
// recording search, metadata resolution, bounded downloads, logout. The
// report is returned even on failure so callers can see how far the run got.
func Run(ctx context.Context, cfg Config, progress Progress) (*Report, error) {
	cfg = applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = NopProgress{}
	}

	client, err := uvc.New(uvc.Options{
		BaseURL:        cfg.BaseURL,
		Username:       cfg.Username,
		Password:       cfg.Password,
		TLSVerify:      cfg.TLSVerify,
		MaxConns:       cfg.MaxConnections,
		RequestTimeout: cfg.RequestTimeout,
		UserAgent:      cfg.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return runWithController(ctx, client, cfg, progress)
}

func runWithController(ctx context.Context, c Controller, cfg Config, progress Progress) (*Report, error) {
	start := time.Now()
	logger := log.WithComponentFromContext(ctx, "archive")
	report := &Report{
		DryRun:  cfg.DryRun,
		Results: make(map[string]DownloadResult),
	}
	finish := func(err error) (*Report, error) {
		report.Elapsed = time.Since(start)
		return report, err
	}

	if !cfg.DryRun {
		if err := PrepareOutputDir(cfg.OutputDir); err != nil {
			return finish(err)
		}
	}

	if err := c.Login(ctx); err != nil {
		return finish(fmt.Errorf("login: %w", err))
	}
	defer func() {
		// Best-effort logout even when the run context is already dead, so
		// an interrupted run does not leak controller sessions.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.RequestTimeout)
		defer cancel()
		if err := c.Logout(ctx); err != nil {
			logger.Warn().Err(err).Msg("session.logout_failed")
		}
	}()

	catalog, err := c.Bootstrap(ctx)
	if err != nil {
		return finish(fmt.Errorf("bootstrap: %w", err))
	}
	logger.Info().Int("cameras", len(catalog)).Msg("catalog.loaded")

	var cameraIDs []string
	if len(cfg.CameraNames) > 0 {
		cameraIDs, err = ResolveCameraIDs(catalog, cfg.CameraNames)
		if err != nil {
			return finish(err)
		}
	}

	recordingIDs, err := c.SearchRecordings(ctx, cfg.StartMS, cfg.EndMS, cameraIDs)
	if err != nil {
		return finish(fmt.Errorf("search recordings: %w", err))
	}
	report.ClipsFound = len(recordingIDs)
	logger.Info().
		Int("recordings", len(recordingIDs)).
		Int64("start_ms", cfg.StartMS).
		Int64("end_ms", cfg.EndMS).
		Msg("search.done")
	if len(recordingIDs) == 0 {
		return finish(nil)
	}

	clips, order, err := resolveClips(ctx, c, cfg, catalog, recordingIDs, progress)
	if err != nil {
		return finish(err)
	}
	report.ClipsQueued = len(order)
	report.Order = order

	if cfg.DryRun {
		for _, id := range order {
			clip := clips[id]
			report.Results[id] = DownloadResult{
				ClipID:  id,
				Camera:  clip.CameraName,
				Path:    clipPath(cfg.OutputDir, clip),
				Outcome: OutcomeSkipped,
			}
			report.Skipped++
		}
		logger.Info().Int("clips", len(order)).Msg("dry_run.done")
		return finish(nil)
	}

	pool := newDownloadPool(c, cfg, progress)
	poolErr := pool.run(ctx, clips, order)

	report.Results = pool.snapshot()
	for _, res := range report.Results {
		switch res.Outcome {
		case OutcomeSuccess:
			report.Succeeded++
			report.BytesWritten += res.Bytes
		case OutcomeFailed:
			report.Failed++
		case OutcomeSkipped:
			report.Skipped++
		}
	}

	report.Elapsed = time.Since(start)
	logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int64("bytes", report.BytesWritten).
		Dur("elapsed", report.Elapsed).
		Msg("archive.done")

	if poolErr != nil {
		return report, fmt.Errorf("downloads aborted: %w", poolErr)
	}
	return report, nil
}
