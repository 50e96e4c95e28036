// SPDX-License-Identifier: MIT

package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/time/rate"

	"github.com/nvrtools/uvcgrab/internal/log"
	"github.com/nvrtools/uvcgrab/internal/uvc"
)

// ErrUnknownCamera is returned when a requested camera name matches nothing
// in the controller catalog.
var ErrUnknownCamera = errors.New("unknown camera")

// ResolveCameraIDs maps requested display names to camera IDs. Names can be
// ambiguous on a controller, so one name may yield several IDs; those are
// sorted for determinism. The result keeps request order and drops duplicate
// IDs when two names hit the same camera.
func ResolveCameraIDs(catalog map[string]uvc.Camera, names []string) ([]string, error) {
	byName := make(map[string][]string, len(catalog))
	for id, cam := range catalog {
		byName[cam.Name] = append(byName[cam.Name], id)
	}
	for _, ids := range byName {
		sort.Strings(ids)
	}

	var out []string
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		ids, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCamera, name)
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

// resolveClips fetches metadata for each recording ID serially, paced by
// MetadataDelay. Recordings still being written are skipped with a warning;
// any other metadata failure aborts the stage because a partial clip list
// would silently archive less than the operator asked for.
func resolveClips(ctx context.Context, c Controller, cfg Config, catalog map[string]uvc.Camera, recordingIDs []string, progress Progress) (map[string]Clip, []string, error) {
	logger := log.WithComponentFromContext(ctx, "resolve")

	every := rate.Inf
	if cfg.MetadataDelay > 0 {
		every = rate.Every(cfg.MetadataDelay)
	}
	limiter := rate.NewLimiter(every, 1)

	clips := make(map[string]Clip, len(recordingIDs))
	order := make([]string, 0, len(recordingIDs))
	total := len(recordingIDs)

	for i, id := range recordingIDs {
		if err := limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("resolve clip %s: %w", id, err)
		}

		meta, err := c.RecordingDetail(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve clip %s: %w", id, err)
		}

		if meta.InProgress {
			logger.Warn().
				Str("clip_id", meta.ID).
				Str("camera_id", meta.CameraID).
				Msg("clip.in_progress")
			continue
		}

		name := meta.CameraName
		if name == "" {
			if cam, ok := catalog[meta.CameraID]; ok {
				name = cam.Name
			}
		}
		if name == "" {
			name = meta.CameraID
		}

		clip := Clip{
			ID:              meta.ID,
			CameraID:        meta.CameraID,
			CameraName:      name,
			StartTime:       meta.StartTime,
			EndTime:         meta.EndTime,
			EventType:       meta.EventType,
			Locked:          meta.Locked,
			RecordingPathID: meta.RecordingPathID,
		}
		clip.FileName = ClipFileName(clip.StartTime, clip.CameraName)

		clips[clip.ID] = clip
		order = append(order, clip.ID)
		clipsResolvedTotal.Inc()
		progress.ClipResolved(clip, i, total)

		logger.Debug().
			Str("clip_id", clip.ID).
			Str("camera", clip.CameraName).
			Str("file", clip.FileName).
			Msg("clip.resolved")
	}
	return clips, order, nil
}
