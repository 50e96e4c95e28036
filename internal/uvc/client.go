// SPDX-License-Identifier: MIT

// Package uvc implements the HTTP client for a UniFi Video NVR controller:
// session login and logout, the camera bootstrap catalog, recording search
// and metadata, and streamed clip downloads.
package uvc

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvrtools/uvcgrab/internal/log"
)

const (
	apiPrefix        = "/api/2.0"
	defaultTimeout   = 30 * time.Second
	defaultMaxConns  = 4
	defaultUserAgent = "uvcgrab"

	// Controller JSON replies are small; this cap only guards against a
	// misbehaving endpoint. Downloads bypass it entirely.
	maxResponseBytes = 32 << 20
)

// Options configures a controller client.
type Options struct {
	// BaseURL is the controller root, e.g. "https://nvr.local:7443".
	BaseURL  string
	Username string
	Password string

	// TLSVerify enables certificate verification. Controllers ship with
	// self-signed certificates, so the default is off.
	TLSVerify bool

	// MaxConns caps concurrent connections to the controller. The transport
	// is the single enforcement point for download parallelism, so this must
	// equal the download worker count.
	MaxConns int

	// RequestTimeout bounds each catalog or metadata request. Downloads are
	// exempt; they only inherit cancellation from the caller's context.
	RequestTimeout time.Duration

	UserAgent string
}

// Client is a session-scoped controller API client. All requests share one
// cookie jar and one transport.
type Client struct {
	base      string
	username  string
	password  string
	userAgent string
	timeout   time.Duration
	http      *http.Client

	mu     sync.Mutex
	apiKey string
}

// New validates opts and returns a client ready for Login.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("uvc: base URL is required")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, errors.New("uvc: username and password are required")
	}
	if opts.MaxConns <= 0 {
		opts.MaxConns = defaultMaxConns
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("uvc: create cookie jar: %w", err)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !opts.TLSVerify, // #nosec G402 -- controllers use self-signed certificates
			MinVersion:         tls.VersionTLS12,
		},
		TLSHandshakeTimeout:   10 * time.Second,
		MaxConnsPerHost:       opts.MaxConns,
		MaxIdleConns:          opts.MaxConns,
		MaxIdleConnsPerHost:   opts.MaxConns,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.RequestTimeout,
	}

	return &Client{
		base:      strings.TrimRight(opts.BaseURL, "/"),
		username:  opts.Username,
		password:  opts.Password,
		userAgent: opts.UserAgent,
		timeout:   opts.RequestTimeout,
		http: &http.Client{
			Jar:       jar,
			Transport: transport,
		},
	}, nil
}

// queryParam is one key=value pair. The controller is order-sensitive for
// recording searches, so queries are built from slices, not url.Values.
type queryParam struct {
	key   string
	value string
}

func encodeParams(params []queryParam) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

func (c *Client) endpoint(path string, params []queryParam) string {
	u := c.base + apiPrefix + path
	if len(params) > 0 {
		u += "?" + encodeParams(params)
	}
	return u
}

func (c *Client) logger(ctx context.Context) zerolog.Logger {
	return log.WithComponentFromContext(ctx, "uvc")
}

// do is the choke point for every control-plane request. It applies the
// per-request timeout, classifies failures into the sentinel taxonomy and
// returns the full response body. A non-nil payload is marshalled as the
// JSON request body.
func (c *Client) do(ctx context.Context, op, method, path string, params []queryParam, cookies []*http.Cookie, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	contentType := "application/x-www-form-urlencoded"
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, transportError(op, ErrBadBody, err)
		}
		reqBody = bytes.NewReader(buf)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, params), reqBody)
	if err != nil {
		return nil, transportError(op, ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	started := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		observeRequest(op, 0)
		sentinel := ErrUnavailable
		if isTimeout(err) {
			sentinel = ErrTimeout
		}
		return nil, transportError(op, sentinel, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		observeRequest(op, 0)
		return nil, transportError(op, ErrUnavailable, err)
	}

	observeRequest(op, res.StatusCode)
	logger := c.logger(ctx)
	logger.Debug().
		Str("event", "uvc.request").
		Str("operation", op).
		Int("status", res.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("controller request")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, statusError(op, res.StatusCode, body)
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginEnvelope struct {
	Data []loginAccount `json:"data"`
}

type loginAccount struct {
	Account struct {
		Username string `json:"username"`
	} `json:"account"`
	APIKey string `json:"apiKey"`
}

// Login opens a controller session. The controller answers with a session
// cookie, which the jar keeps, and a per-account API key, which the client
// extracts for the account it authenticated as.
func (c *Client) Login(ctx context.Context) error {
	const op = "login"
	body, err := c.do(ctx, op, http.MethodPost, "/login", nil, nil, loginRequest{
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return err
	}

	var env loginEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &APIError{Sentinel: ErrBadBody, Operation: op, Err: err}
	}

	for _, entry := range env.Data {
		if entry.Account.Username == c.username {
			c.mu.Lock()
			c.apiKey = entry.APIKey
			c.mu.Unlock()
			logger := c.logger(ctx)
			logger.Info().
				Str("event", "session.open").
				Str("username", c.username).
				Msg("controller session established")
			return nil
		}
	}
	return &APIError{
		Sentinel:  ErrBadBody,
		Operation: op,
		Body:      fmt.Sprintf("no account entry for %q in login response", c.username),
	}
}

// Logout closes the controller session. Safe to call after a failed run; the
// controller invalidates the cookie either way.
func (c *Client) Logout(ctx context.Context) error {
	const op = "logout"
	if _, err := c.do(ctx, op, http.MethodGet, "/logout", nil, nil, nil); err != nil {
		return err
	}
	logger := c.logger(ctx)
	logger.Info().Str("event", "session.close").Msg("controller session closed")
	return nil
}

// APIKey returns the key extracted during Login, empty before login succeeds.
func (c *Client) APIKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiKey
}

// Close releases idle connections. It does not touch the session; call
// Logout first.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
