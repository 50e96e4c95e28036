// SPDX-License-Identifier: MIT

package uvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RecordingMeta is the resolved metadata for one recording. It is a plain
// value; the resolver constructs it once and nothing mutates it afterwards.
type RecordingMeta struct {
	ID              string
	CameraID        string
	CameraName      string
	StartTime       int64 // epoch milliseconds
	EndTime         int64 // epoch milliseconds
	EventType       string
	InProgress      bool
	Locked          bool
	RecordingPathID string
}

type recordingEnvelope struct {
	Data []recordingJSON `json:"data"`
}

type recordingJSON struct {
	ID         string `json:"_id"`
	CameraID   string `json:"cameraId"`
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
	EventType  string `json:"eventType"`
	InProgress bool   `json:"inProgress"`
	Locked     bool   `json:"locked"`
	Meta       struct {
		CameraName      string `json:"cameraName"`
		RecordingPathID string `json:"recordingPathId"`
	} `json:"meta"`
}

type searchEnvelope struct {
	Data []string `json:"data"`
}

// SearchRecordings returns the IDs of full-time recordings that overlap the
// window, newest first. The controller expects the query parameters in this
// exact order; camera filters go last and are omitted entirely when empty.
func (c *Client) SearchRecordings(ctx context.Context, startMS, endMS int64, cameraIDs []string) ([]string, error) {
	const op = "recording.search"
	params := []queryParam{
		{"cause[]", "fullTimeRecording"},
		{"startTime", strconv.FormatInt(startMS, 10)},
		{"endTime", strconv.FormatInt(endMS, 10)},
		{"idsOnly", "true"},
		{"sortBy", "startTime"},
		{"sort", "desc"},
	}
	for _, id := range cameraIDs {
		params = append(params, queryParam{"cameras[]", id})
	}

	body, err := c.do(ctx, op, http.MethodGet, "/recording", params, nil, nil)
	if err != nil {
		return nil, err
	}

	var env searchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &APIError{Sentinel: ErrBadBody, Operation: op, Err: err}
	}

	logger := c.logger(ctx)
	logger.Debug().
		Str("event", "search.complete").
		Int("clips", len(env.Data)).
		Int64("start_ms", startMS).
		Int64("end_ms", endMS).
		Msg("recording search complete")
	return env.Data, nil
}

// RecordingDetail fetches the metadata for one recording. The controller
// wants the map and live-view cookies nulled on this endpoint, matching what
// its own web UI sends.
func (c *Client) RecordingDetail(ctx context.Context, id string) (RecordingMeta, error) {
	const op = "recording.detail"
	cookies := []*http.Cookie{
		{Name: "lastMap", Value: "null"},
		{Name: "lastLiveView", Value: "null"},
	}
	body, err := c.do(ctx, op, http.MethodGet, "/recording/"+url.PathEscape(id), nil, cookies, nil)
	if err != nil {
		return RecordingMeta{}, err
	}

	var env recordingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return RecordingMeta{}, &APIError{Sentinel: ErrBadBody, Operation: op, Err: err}
	}
	if len(env.Data) == 0 {
		return RecordingMeta{}, &APIError{Sentinel: ErrBadBody, Operation: op, Body: "empty data for recording " + id}
	}

	raw := env.Data[0]
	if raw.ID == "" {
		return RecordingMeta{}, &APIError{Sentinel: ErrBadBody, Operation: op, Body: "recording entry without _id"}
	}
	return RecordingMeta{
		ID:              raw.ID,
		CameraID:        raw.CameraID,
		CameraName:      raw.Meta.CameraName,
		StartTime:       raw.StartTime,
		EndTime:         raw.EndTime,
		EventType:       raw.EventType,
		InProgress:      raw.InProgress,
		Locked:          raw.Locked,
		RecordingPathID: raw.Meta.RecordingPathID,
	}, nil
}

// OpenRecording starts a clip download and returns the body stream plus the
// advertised length (-1 when unknown). Unlike the control-plane calls there
// is no per-request deadline; a multi-gigabyte transfer takes as long as it
// takes and is bounded only by ctx. The caller must close the stream.
func (c *Client) OpenRecording(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	const op = "recording.download"
	u := c.endpoint("/recording/"+url.PathEscape(id)+"/download", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, transportError(op, ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.AddCookie(&http.Cookie{Name: "cameras.isManagedFilterOn", Value: "false"})

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		observeRequest(op, 0)
		sentinel := ErrUnavailable
		if isTimeout(err) {
			sentinel = ErrTimeout
		}
		return nil, 0, transportError(op, sentinel, err)
	}

	observeRequest(op, res.StatusCode)
	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrBodyBytes))
		res.Body.Close()
		return nil, 0, statusError(op, res.StatusCode, body)
	}

	logger := c.logger(ctx)
	logger.Debug().
		Str("event", "download.open").
		Str("recording_id", id).
		Int64("content_length", res.ContentLength).
		Dur("first_byte", time.Since(started)).
		Msg("download stream opened")
	return res.Body, res.ContentLength, nil
}
