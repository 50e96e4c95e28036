// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nvrtools/uvcgrab/internal/archive"
	"github.com/nvrtools/uvcgrab/internal/config"
	"github.com/nvrtools/uvcgrab/internal/diag"
	"github.com/nvrtools/uvcgrab/internal/log"
	"github.com/nvrtools/uvcgrab/internal/validate"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	defaults := config.Defaults()

	cmd := &cobra.Command{
		Use:   "uvcgrab [camera ...]",
		Short: "Archive recorded clips from a UniFi Video controller",
		Long: `uvcgrab logs into a UniFi Video (NVR) controller, finds the recordings
inside a time window, and downloads each clip into per-camera directories.
Downloads are streamed, written atomically and bounded by a worker pool so
the controller is never overloaded.

Camera arguments are display names, e.g. "Front Door"; with none given every
camera is archived.`,
		Args:         cobra.ArbitraryArgs,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage: true,
		RunE:         runArchive,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")
	pf.StringP("hostname", "d", "", "controller hostname or IP")
	pf.IntP("port", "p", defaults.Port, "controller HTTPS port")
	pf.StringP("username", "u", defaults.Username, "controller account name")
	pf.String("password", "", "controller account password")
	pf.Bool("tls-verify", defaults.TLSVerify, "verify the controller TLS certificate")
	pf.Duration("request-timeout", defaults.RequestTimeout, "timeout per catalog or metadata request")
	pf.String("log-level", defaults.LogLevel, "log level (trace, debug, info, warn, error)")
	pf.Bool("log-json", defaults.LogJSON, "emit JSON log lines instead of console output")

	f := cmd.Flags()
	f.StringP("start-time", "s", "", "window start, formatted "+cliTimeLayout)
	f.StringP("end-time", "e", "", "window end, formatted "+cliTimeLayout)
	f.String("timezone", defaults.Timezone, "IANA time zone the window stamps are given in")
	f.StringP("output-dir", "o", defaults.OutputDir, "directory receiving the archived clips")
	f.IntP("max-connections", "m", defaults.MaxConnections, "maximum concurrent downloads")
	f.Int("chunk-size", defaults.ChunkSize, "download copy buffer in bytes")
	f.Duration("metadata-delay", defaults.MetadataDelay, "pause between recording metadata requests")
	f.BoolP("dry-run", "n", false, "resolve and list clips without downloading anything")
	f.String("debug-listen", defaults.DebugListen, "optional listen address for health and metrics endpoints")

	_ = cmd.MarkFlagRequired("start-time")
	_ = cmd.MarkFlagRequired("end-time")

	cmd.AddCommand(newCamerasCmd())
	return cmd
}

func runArchive(cmd *cobra.Command, cameras []string) error {
	settings, err := mergedSettings(cmd)
	if err != nil {
		logger := log.WithComponent("cli")
		logger.Error().Err(err).Str("stage", "config").Msg("run.failed")
		return err
	}
	configureLogging(settings)
	logger := log.WithComponent("cli")

	flags := cmd.Flags()
	startStr, _ := flags.GetString("start-time")
	endStr, _ := flags.GetString("end-time")
	startMS, endMS, err := parseWindow(startStr, endStr, settings.Timezone)
	if err != nil {
		logger.Error().Err(err).Str("stage", "window").Msg("run.failed")
		return err
	}

	dryRun, _ := flags.GetBool("dry-run")

	runID := uuid.New().String()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.ContextWithRunID(ctx, runID)

	logger.Info().
		Str("run_id", runID).
		Str("controller", settings.BaseURL()).
		Str("window_start", startStr).
		Str("window_end", endStr).
		Str("timezone", settings.Timezone).
		Strs("cameras", cameras).
		Bool("dry_run", dryRun).
		Msg("run.start")

	// The diagnostics listener lives for the duration of the run. Losing it
	// is not worth aborting an archive over.
	diagCtx, stopDiag := context.WithCancel(ctx)
	defer stopDiag()
	var diagDone chan error
	if settings.DebugListen != "" {
		srv := diag.New(settings.DebugListen, version)
		diagDone = make(chan error, 1)
		go func() { diagDone <- srv.Run(diagCtx) }()
	}

	report, runErr := archive.Run(ctx, archiveConfig(settings, startMS, endMS, cameras, dryRun),
		&progressLogger{logger: log.WithComponent("progress")})

	stopDiag()
	if diagDone != nil {
		if err := <-diagDone; err != nil {
			logger.Warn().Err(err).Msg("diagnostics listener error")
		}
	}

	if runErr != nil {
		if report == nil {
			logger.Error().Err(runErr).Str("stage", "setup").Msg("run.failed")
			return runErr
		}
		logger.Error().
			Err(runErr).
			Int("succeeded", report.Succeeded).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Msg("run.aborted")
		return runErr
	}

	return logRunOutcome(logger, runID, report)
}

// logRunOutcome reports a completed run and returns the error that makes the
// exit code nonzero when any clip failed.
func logRunOutcome(logger zerolog.Logger, runID string, report *archive.Report) error {
	if report.DryRun {
		logger.Error().
			Int("would_download", report.ClipsQueued).
			Msg("DRY RUN - no videos downloaded")
	}

	logger.Info().
		Str("run_id", runID).
		Int("found", report.ClipsFound).
		Int("queued", report.ClipsQueued).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Int64("bytes", report.BytesWritten).
		Dur("elapsed", report.Elapsed).
		Msg("run.done")

	if report.Failed > 0 {
		return fmt.Errorf("%d of %d clips failed to download", report.Failed, report.ClipsQueued)
	}
	return nil
}

// mergedSettings loads the layered configuration and overlays any flag the
// user set explicitly. Flags beat environment, environment beats file.
func mergedSettings(cmd *cobra.Command) (config.Settings, error) {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")

	settings, err := config.NewLoader(configPath).Load()
	if err != nil {
		return config.Settings{}, fmt.Errorf("load config: %w", err)
	}

	if flags.Changed("hostname") {
		settings.Host, _ = flags.GetString("hostname")
	}
	if flags.Changed("port") {
		settings.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("username") {
		settings.Username, _ = flags.GetString("username")
	}
	if flags.Changed("password") {
		settings.Password, _ = flags.GetString("password")
	}
	if flags.Changed("output-dir") {
		settings.OutputDir, _ = flags.GetString("output-dir")
	}
	if flags.Changed("max-connections") {
		settings.MaxConnections, _ = flags.GetInt("max-connections")
	}
	if flags.Changed("chunk-size") {
		settings.ChunkSize, _ = flags.GetInt("chunk-size")
	}
	if flags.Changed("metadata-delay") {
		settings.MetadataDelay, _ = flags.GetDuration("metadata-delay")
	}
	if flags.Changed("request-timeout") {
		settings.RequestTimeout, _ = flags.GetDuration("request-timeout")
	}
	if flags.Changed("tls-verify") {
		settings.TLSVerify, _ = flags.GetBool("tls-verify")
	}
	if flags.Changed("timezone") {
		settings.Timezone, _ = flags.GetString("timezone")
	}
	if flags.Changed("log-level") {
		settings.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		settings.LogJSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("debug-listen") {
		settings.DebugListen, _ = flags.GetString("debug-listen")
	}
	if _, err := validate.ParseLogLevel(settings.LogLevel); err != nil {
		return config.Settings{}, fmt.Errorf("log level %q: %w", settings.LogLevel, err)
	}
	return settings, nil
}

func configureLogging(settings config.Settings) {
	log.Configure(log.Config{
		Level:   settings.LogLevel,
		Console: !settings.LogJSON,
		Service: "uvcgrab",
		Version: version,
	})
}

func archiveConfig(s config.Settings, startMS, endMS int64, cameras []string, dryRun bool) archive.Config {
	return archive.Config{
		BaseURL:        s.BaseURL(),
		Username:       s.Username,
		Password:       s.Password,
		CameraNames:    cameras,
		StartMS:        startMS,
		EndMS:          endMS,
		OutputDir:      s.OutputDir,
		MaxConnections: s.MaxConnections,
		ChunkSize:      s.ChunkSize,
		MetadataDelay:  s.MetadataDelay,
		RequestTimeout: s.RequestTimeout,
		TLSVerify:      s.TLSVerify,
		DryRun:         dryRun,
		UserAgent:      "uvcgrab/" + version,
	}
}

// progressLogger narrates pipeline milestones for the operator. The download
// pool logs per-clip details itself; this adds queue listings and a running
// completion count.
type progressLogger struct {
	logger zerolog.Logger
	queued atomic.Int64
	done   atomic.Int64
}

func (p *progressLogger) ClipResolved(clip archive.Clip, _, _ int) {
	n := p.queued.Add(1)
	p.logger.Info().
		Str("clip_id", clip.ID).
		Str("camera", clip.CameraName).
		Str("file", clip.FileName).
		Int64("queued", n).
		Msg("clip.queued")
}

func (p *progressLogger) DownloadStarted(clip archive.Clip) {
	p.logger.Debug().Str("clip_id", clip.ID).Msg("download.start")
}

func (p *progressLogger) DownloadFinished(res archive.DownloadResult) {
	p.logger.Info().
		Str("clip_id", res.ClipID).
		Str("outcome", string(res.Outcome)).
		Int64("completed", p.done.Add(1)).
		Int64("of", p.queued.Load()).
		Msg("archive.progress")
}
