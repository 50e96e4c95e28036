// SPDX-License-Identifier: MIT

package uvc

import (
	"context"
	"encoding/json"
	"net/http"
)

// Camera describes one camera from the controller bootstrap. The struct is a
// plain value; callers never mutate catalog entries after the fetch.
type Camera struct {
	ID                 string
	Name               string
	Host               string
	RTSPURI            string
	RTSPEnabled        bool
	LastRecordingID    string
	LastRecordingStart int64
}

type bootstrapEnvelope struct {
	Data []struct {
		Cameras []bootstrapCamera `json:"cameras"`
	} `json:"data"`
}

type bootstrapCamera struct {
	ID                     string             `json:"_id"`
	Host                   string             `json:"host"`
	LastRecordingID        string             `json:"lastRecordingId"`
	LastRecordingStartTime int64              `json:"lastRecordingStartTime"`
	DeviceSettings         deviceSettings     `json:"deviceSettings"`
	Channels               []bootstrapChannel `json:"channels"`
}

type deviceSettings struct {
	Name string `json:"name"`
}

type bootstrapChannel struct {
	ID            string   `json:"id"`
	IsRTSPEnabled bool     `json:"isRtspEnabled"`
	RTSPURIs      []string `json:"rtspUris"`
}

// Bootstrap fetches the camera catalog, keyed by camera ID. The request
// carries a cookie that disables the controller's managed-camera filter so
// unmanaged cameras appear too.
func (c *Client) Bootstrap(ctx context.Context) (map[string]Camera, error) {
	const op = "bootstrap"
	cookies := []*http.Cookie{
		{Name: "cameras.isManagedFilterOn", Value: "false"},
	}
	body, err := c.do(ctx, op, http.MethodGet, "/bootstrap", nil, cookies, nil)
	if err != nil {
		return nil, err
	}

	var env bootstrapEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &APIError{Sentinel: ErrBadBody, Operation: op, Err: err}
	}
	if len(env.Data) == 0 {
		return nil, &APIError{Sentinel: ErrBadBody, Operation: op, Body: "bootstrap response has no data entries"}
	}

	catalog := make(map[string]Camera)
	for _, entry := range env.Data {
		for _, cam := range entry.Cameras {
			if cam.ID == "" {
				continue
			}
			uri, enabled := primaryRTSPChannel(cam)
			catalog[cam.ID] = Camera{
				ID:                 cam.ID,
				Name:               cam.DeviceSettings.Name,
				Host:               cam.Host,
				RTSPURI:            uri,
				RTSPEnabled:        enabled,
				LastRecordingID:    cam.LastRecordingID,
				LastRecordingStart: cam.LastRecordingStartTime,
			}
		}
	}
	if len(catalog) == 0 {
		return nil, &APIError{Sentinel: ErrBadBody, Operation: op, Body: "controller reported no cameras"}
	}

	logger := c.logger(ctx)
	logger.Debug().
		Str("event", "catalog.fetched").
		Int("cameras", len(catalog)).
		Msg("camera catalog fetched")
	return catalog, nil
}

// primaryRTSPChannel picks channel "1" and returns its stream URI and enabled
// flag, preferring the second advertised URI (the externally reachable one)
// when present.
func primaryRTSPChannel(cam bootstrapCamera) (string, bool) {
	for _, ch := range cam.Channels {
		if ch.ID != "1" {
			continue
		}
		if len(ch.RTSPURIs) > 1 {
			return ch.RTSPURIs[1], ch.IsRTSPEnabled
		}
		if len(ch.RTSPURIs) == 1 {
			return ch.RTSPURIs[0], ch.IsRTSPEnabled
		}
		return "", ch.IsRTSPEnabled
	}
	return "", false
}
