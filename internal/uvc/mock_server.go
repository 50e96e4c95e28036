// SPDX-License-Identifier: MIT
package uvc

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const sessionCookieName = "JSESSIONID_AV"

// MockNVR provides a configurable UniFi Video controller mock for testing.
// It runs over TLS with a self-signed certificate, like the real appliance.
type MockNVR struct {
	*httptest.Server

	mu            sync.Mutex
	username      string
	password      string
	apiKey        string
	sessionSeq    int
	sessions      map[string]bool
	expired       bool
	cameras       []MockCamera
	recordings    map[string]MockRecording
	payloads      map[string][]byte
	loginStatus   int
	loginDelay    time.Duration
	omitAccount   bool
	catalogStatus int
	searchStatus  int
	detailStatus  map[string]int
	emptyDetail   map[string]bool
	dlStatus      map[string]int
	dlDelay       time.Duration
	barrier       *downloadBarrier

	requests []RecordedRequest

	inflight     int
	peakInflight int
	dlStarted    int
}

// MockCamera is the configurable catalog entry served by the bootstrap
// endpoint.
type MockCamera struct {
	ID          string
	Name        string
	Host        string
	RTSPURIs    []string
	RTSPEnabled bool
}

// MockRecording is one recording known to the mock controller.
type MockRecording struct {
	ID              string
	CameraID        string
	CameraName      string
	StartTime       int64
	EndTime         int64
	EventType       string
	InProgress      bool
	Locked          bool
	RecordingPathID string
}

// RecordedRequest captures one request for assertions on wire details.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Body     string
	Cookies  map[string]string
}

// NewMockNVR creates a controller mock with realistic default data.
func NewMockNVR() *MockNVR {
	mock := &MockNVR{
		sessions:     make(map[string]bool),
		recordings:   make(map[string]MockRecording),
		payloads:     make(map[string][]byte),
		detailStatus: make(map[string]int),
		emptyDetail:  make(map[string]bool),
		dlStatus:     make(map[string]int),
	}
	mock.SetDefaultData()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/2.0/login", mock.handleLogin)
	mux.HandleFunc("/api/2.0/logout", mock.handleLogout)
	mux.HandleFunc("/api/2.0/bootstrap", mock.handleBootstrap)
	mux.HandleFunc("/api/2.0/recording", mock.handleSearch)
	mux.HandleFunc("/api/2.0/recording/", mock.handleRecording)

	mock.Server = httptest.NewTLSServer(mux)
	return mock
}

// SetDefaultData installs the default credentials, cameras and recordings.
func (m *MockNVR) SetDefaultData() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.username = "administrator"
	m.password = "changeme"
	m.apiKey = "wXyZ0123abcDEF456"
	m.expired = false

	m.cameras = []MockCamera{
		{
			ID:          "5a0aa2f9e4b0d3b9a1e8c001",
			Name:        "Front Door",
			Host:        "192.168.1.21",
			RTSPURIs:    []string{"rtsp://10.0.0.1:7447/internal01", "rtsp://192.168.1.5:7447/public01"},
			RTSPEnabled: true,
		},
		{
			ID:          "5a0aa2f9e4b0d3b9a1e8c002",
			Name:        "Back Yard",
			Host:        "192.168.1.22",
			RTSPURIs:    []string{"rtsp://10.0.0.1:7447/internal02"},
			RTSPEnabled: true,
		},
	}

	m.recordings = map[string]MockRecording{
		"5bb78f2ce4b0a2d8f1c30a01": {
			ID:         "5bb78f2ce4b0a2d8f1c30a01",
			CameraID:   "5a0aa2f9e4b0d3b9a1e8c001",
			CameraName: "Front Door",
			StartTime:  1538719200000,
			EndTime:    1538720100000,
			EventType:  "fullTimeRecording",
		},
		"5bb78f2ce4b0a2d8f1c30a02": {
			ID:         "5bb78f2ce4b0a2d8f1c30a02",
			CameraID:   "5a0aa2f9e4b0d3b9a1e8c001",
			CameraName: "Front Door",
			StartTime:  1538720100000,
			EndTime:    1538721000000,
			EventType:  "fullTimeRecording",
		},
		"5bb78f2ce4b0a2d8f1c30a03": {
			ID:         "5bb78f2ce4b0a2d8f1c30a03",
			CameraID:   "5a0aa2f9e4b0d3b9a1e8c002",
			CameraName: "Back Yard",
			StartTime:  1538719500000,
			EndTime:    1538720400000,
			EventType:  "fullTimeRecording",
		},
	}

	m.payloads = make(map[string][]byte)
	for id := range m.recordings {
		m.payloads[id] = []byte(strings.Repeat("mp4:"+id+";", 64))
	}

	m.loginStatus = 0
	m.loginDelay = 0
	m.omitAccount = false
	m.catalogStatus = 0
	m.searchStatus = 0
	m.detailStatus = make(map[string]int)
	m.emptyDetail = make(map[string]bool)
	m.dlStatus = make(map[string]int)
	m.dlDelay = 0
	m.barrier = nil
	m.requests = nil
	m.inflight = 0
	m.peakInflight = 0
	m.dlStarted = 0
}

// SetLoginDelay holds the login endpoint for d before answering.
func (m *MockNVR) SetLoginDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginDelay = d
}

// SetOmitAccountEntry makes login succeed without an account entry for the
// authenticated user in the response body.
func (m *MockNVR) SetOmitAccountEntry(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitAccount = omit
}

// SetEmptyDetail makes the metadata endpoint answer 200 with an empty data
// array for the given recording.
func (m *MockNVR) SetEmptyDetail(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyDetail[id] = true
}

// SetCredentials changes the accepted login credentials.
func (m *MockNVR) SetCredentials(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.username = username
	m.password = password
}

// SetCameras replaces the camera catalog.
func (m *MockNVR) SetCameras(cams ...MockCamera) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameras = cams
}

// AddRecording registers a recording and a synthetic payload for it.
func (m *MockNVR) AddRecording(rec MockRecording) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings[rec.ID] = rec
	if _, ok := m.payloads[rec.ID]; !ok {
		m.payloads[rec.ID] = []byte(strings.Repeat("mp4:"+rec.ID+";", 64))
	}
}

// ClearRecordings removes all recordings and payloads.
func (m *MockNVR) ClearRecordings() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings = make(map[string]MockRecording)
	m.payloads = make(map[string][]byte)
}

// SetPayload overrides the download body for one recording.
func (m *MockNVR) SetPayload(id string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads[id] = body
}

// FailLogin forces the login endpoint to answer with the given status.
func (m *MockNVR) FailLogin(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginStatus = status
}

// FailBootstrap forces the bootstrap endpoint to answer with the given status.
func (m *MockNVR) FailBootstrap(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogStatus = status
}

// FailSearch forces the recording search to answer with the given status.
func (m *MockNVR) FailSearch(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchStatus = status
}

// FailDetail forces the metadata endpoint for one recording to answer with
// the given status.
func (m *MockNVR) FailDetail(id string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detailStatus[id] = status
}

// FailDownload forces the download endpoint for one recording to answer with
// the given status.
func (m *MockNVR) FailDownload(id string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlStatus[id] = status
}

// ExpireSessions invalidates every session; all later authenticated calls
// get 401 until the next login.
func (m *MockNVR) ExpireSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = true
	m.sessions = make(map[string]bool)
}

// SetDownloadDelay holds each download open for d before the body is sent.
func (m *MockNVR) SetDownloadDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlDelay = d
}

// SetDownloadBarrier blocks each download until n of them have arrived. With
// n equal to the worker count this makes peak concurrency deterministic.
func (m *MockNVR) SetDownloadBarrier(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.barrier = newDownloadBarrier(n)
}

// Requests returns a snapshot of all recorded requests.
func (m *MockNVR) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// LastRequest returns the most recent request for the given path, or nil.
func (m *MockNVR) LastRequest(path string) *RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.requests) - 1; i >= 0; i-- {
		if m.requests[i].Path == path {
			r := m.requests[i]
			return &r
		}
	}
	return nil
}

// PeakConcurrentDownloads reports the highest number of downloads the mock
// served at the same time.
func (m *MockNVR) PeakConcurrentDownloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peakInflight
}

// DownloadsStarted reports how many download requests passed the session
// check.
func (m *MockNVR) DownloadsStarted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dlStarted
}

// ActiveSessions reports how many sessions are currently open.
func (m *MockNVR) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// URL returns the mock server's base URL.
func (m *MockNVR) URL() string {
	return m.Server.URL
}

// record captures r for later assertions. body is the request body when the
// handler consumed it, nil otherwise. Callers must hold m.mu.
func (m *MockNVR) record(r *http.Request, body []byte) {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	m.requests = append(m.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Body:     string(body),
		Cookies:  cookies,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": []any{},
		"meta": map[string]string{"errorMessage": msg},
	})
}

// requireSession validates the session cookie. Callers must hold m.mu.
func (m *MockNVR) requireSession(r *http.Request) bool {
	if m.expired {
		return false
	}
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	return m.sessions[c.Value]
}

func (m *MockNVR) handleLogin(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.record(r, raw)
	delay := m.loginDelay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loginStatus != 0 {
		writeAPIError(w, m.loginStatus, "login rejected")
		return
	}
	if r.Method != http.MethodPost {
		writeAPIError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	// The controller only accepts credentials as a JSON body.
	var creds loginRequest
	if err := json.Unmarshal(raw, &creds); err != nil {
		writeAPIError(w, http.StatusBadRequest, "malformed login payload")
		return
	}
	if creds.Username != m.username || creds.Password != m.password {
		writeAPIError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	m.sessionSeq++
	token := "session-" + strconv.Itoa(m.sessionSeq)
	m.sessions[token] = true
	m.expired = false
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: token, Path: "/"})

	// A decoy account comes first so clients must match on username.
	decoy := loginAccount{APIKey: "decoy-key"}
	decoy.Account.Username = "svc.backup"
	accounts := []loginAccount{decoy}
	if !m.omitAccount {
		self := loginAccount{APIKey: m.apiKey}
		self.Account.Username = m.username
		accounts = append(accounts, self)
	}
	writeJSON(w, loginEnvelope{Data: accounts})
}

func (m *MockNVR) handleLogout(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(r, nil)

	if !m.requireSession(r) {
		writeAPIError(w, http.StatusUnauthorized, "no session")
		return
	}
	if c, err := r.Cookie(sessionCookieName); err == nil {
		delete(m.sessions, c.Value)
	}
	writeJSON(w, map[string]any{"data": []any{}})
}

func (m *MockNVR) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(r, nil)

	if !m.requireSession(r) {
		writeAPIError(w, http.StatusUnauthorized, "no session")
		return
	}
	if m.catalogStatus != 0 {
		writeAPIError(w, m.catalogStatus, "bootstrap failed")
		return
	}

	cams := make([]bootstrapCamera, 0, len(m.cameras))
	for _, c := range m.cameras {
		bc := bootstrapCamera{
			ID:   c.ID,
			Host: c.Host,
			Channels: []bootstrapChannel{
				{ID: "1", IsRTSPEnabled: c.RTSPEnabled, RTSPURIs: c.RTSPURIs},
			},
		}
		bc.DeviceSettings.Name = c.Name
		cams = append(cams, bc)
	}
	writeJSON(w, map[string]any{
		"data": []map[string]any{{"cameras": cams}},
	})
}

func (m *MockNVR) handleSearch(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(r, nil)

	if !m.requireSession(r) {
		writeAPIError(w, http.StatusUnauthorized, "no session")
		return
	}
	if m.searchStatus != 0 {
		writeAPIError(w, m.searchStatus, "search failed")
		return
	}

	q := r.URL.Query()
	startMS, _ := strconv.ParseInt(q.Get("startTime"), 10, 64)
	endMS, _ := strconv.ParseInt(q.Get("endTime"), 10, 64)
	cameraFilter := q["cameras[]"]

	matched := make([]MockRecording, 0, len(m.recordings))
	for _, rec := range m.recordings {
		if startMS != 0 && rec.StartTime < startMS {
			continue
		}
		if endMS != 0 && rec.StartTime > endMS {
			continue
		}
		if len(cameraFilter) > 0 && !containsString(cameraFilter, rec.CameraID) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartTime > matched[j].StartTime
	})

	ids := make([]string, len(matched))
	for i, rec := range matched {
		ids[i] = rec.ID
	}
	writeJSON(w, searchEnvelope{Data: ids})
}

// handleRecording serves both /recording/{id} and /recording/{id}/download.
func (m *MockNVR) handleRecording(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/2.0/recording/")
	if strings.HasSuffix(rest, "/download") {
		m.handleDownload(w, r, strings.TrimSuffix(rest, "/download"))
		return
	}
	m.handleDetail(w, r, rest)
}

func (m *MockNVR) handleDetail(w http.ResponseWriter, r *http.Request, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(r, nil)

	if !m.requireSession(r) {
		writeAPIError(w, http.StatusUnauthorized, "no session")
		return
	}
	if status, ok := m.detailStatus[id]; ok && status != 0 {
		writeAPIError(w, status, "recording detail failed")
		return
	}
	if m.emptyDetail[id] {
		writeJSON(w, recordingEnvelope{Data: []recordingJSON{}})
		return
	}
	rec, ok := m.recordings[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound, "recording not found")
		return
	}

	raw := recordingJSON{
		ID:         rec.ID,
		CameraID:   rec.CameraID,
		StartTime:  rec.StartTime,
		EndTime:    rec.EndTime,
		EventType:  rec.EventType,
		InProgress: rec.InProgress,
		Locked:     rec.Locked,
	}
	raw.Meta.CameraName = rec.CameraName
	raw.Meta.RecordingPathID = rec.RecordingPathID
	if raw.Meta.RecordingPathID == "" {
		raw.Meta.RecordingPathID = rec.ID + "_0"
	}
	writeJSON(w, recordingEnvelope{Data: []recordingJSON{raw}})
}

func (m *MockNVR) handleDownload(w http.ResponseWriter, r *http.Request, id string) {
	m.mu.Lock()
	m.record(r, nil)

	if !m.requireSession(r) {
		m.mu.Unlock()
		writeAPIError(w, http.StatusUnauthorized, "no session")
		return
	}
	if status, ok := m.dlStatus[id]; ok && status != 0 {
		m.mu.Unlock()
		writeAPIError(w, status, "download failed")
		return
	}
	payload, ok := m.payloads[id]
	if !ok {
		m.mu.Unlock()
		writeAPIError(w, http.StatusNotFound, "no footage for recording")
		return
	}

	m.dlStarted++
	m.inflight++
	if m.inflight > m.peakInflight {
		m.peakInflight = m.inflight
	}
	delay := m.dlDelay
	barrier := m.barrier
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inflight--
		m.mu.Unlock()
	}()

	if barrier != nil {
		barrier.arrive()
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	_, _ = w.Write(payload)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// downloadBarrier blocks arrivals until n of them are in flight at once.
type downloadBarrier struct {
	need    int
	mu      sync.Mutex
	arrived int
	release chan struct{}
	once    sync.Once
}

func newDownloadBarrier(n int) *downloadBarrier {
	return &downloadBarrier{need: n, release: make(chan struct{})}
}

func (b *downloadBarrier) arrive() {
	b.mu.Lock()
	b.arrived++
	if b.arrived >= b.need {
		b.once.Do(func() { close(b.release) })
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(2 * time.Second):
	}
}
