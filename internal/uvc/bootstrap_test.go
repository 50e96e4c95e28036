// SPDX-License-Identifier: MIT
package uvc

import (
	"context"
	"errors"
	"testing"
)

func TestBootstrapBuildsCatalog(t *testing.T) {
	m := NewMockNVR()
	defer m.Close()
	c := newTestClient(t, m)
	ctx := context.Background()

	loginOrFatal(t, ctx, c)

	catalog, err := c.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if len(catalog) != 2 {
		t.Fatalf("catalog size = %d, want 2", len(catalog))
	}

	front, ok := catalog["5a0aa2f9e4b0d3b9a1e8c001"]
	if !ok {
		t.Fatal("catalog is missing the Front Door camera")
	}
	if front.Name != "Front Door" {
		t.Errorf("Name = %q, want Front Door", front.Name)
	}
	if front.Host != "192.168.1.21" {
		t.Errorf("Host = %q, want 192.168.1.21", front.Host)
	}
	// Two advertised URIs: the second one is the externally reachable one.
	if front.RTSPURI != "rtsp://192.168.1.5:7447/public01" {
		t.Errorf("RTSPURI = %q, want the second advertised URI", front.RTSPURI)
	}
	if !front.RTSPEnabled {
		t.Error("RTSPEnabled = false, want the channel flag")
	}

	back := catalog["5a0aa2f9e4b0d3b9a1e8c002"]
	if back.RTSPURI != "rtsp://10.0.0.1:7447/internal02" {
		t.Errorf("RTSPURI = %q, want the only advertised URI", back.RTSPURI)
	}
}

func TestBootstrapDisabledRTSPChannel(t *testing.T) {
	m := NewMockNVR()
	defer m.Close()
	m.SetCameras(MockCamera{
		ID:       "5a0aa2f9e4b0d3b9a1e8c009",
		Name:     "Garage",
		Host:     "192.168.1.23",
		RTSPURIs: []string{"rtsp://10.0.0.1:7447/internal09"},
	})
	c := newTestClient(t, m)
	ctx := context.Background()

	loginOrFatal(t, ctx, c)

	catalog, err := c.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if catalog["5a0aa2f9e4b0d3b9a1e8c009"].RTSPEnabled {
		t.Error("RTSPEnabled = true for a camera with RTSP off")
	}
}

func TestBootstrapSendsManagedFilterCookie(t *testing.T) {
	m := NewMockNVR()
	defer m.Close()
	c := newTestClient(t, m)
	ctx := context.Background()

	loginOrFatal(t, ctx, c)
	if _, err := c.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}

	req := m.LastRequest("/api/2.0/bootstrap")
	if req == nil {
		t.Fatal("no bootstrap request recorded")
	}
	if got := req.Cookies["cameras.isManagedFilterOn"]; got != "false" {
		t.Errorf("cameras.isManagedFilterOn cookie = %q, want \"false\"", got)
	}
}

func TestBootstrapEmptyCatalogFails(t *testing.T) {
	m := NewMockNVR()
	defer m.Close()
	m.SetCameras()
	c := newTestClient(t, m)
	ctx := context.Background()

	loginOrFatal(t, ctx, c)

	if _, err := c.Bootstrap(ctx); !errors.Is(err, ErrBadBody) {
		t.Fatalf("Bootstrap with no cameras = %v, want ErrBadBody", err)
	}
}

func TestBootstrapWithoutSessionFails(t *testing.T) {
	m := NewMockNVR()
	defer m.Close()
	c := newTestClient(t, m)

	if _, err := c.Bootstrap(context.Background()); !errors.Is(err, ErrAuth) {
		t.Fatalf("Bootstrap without login = %v, want ErrAuth", err)
	}
}

func TestBootstrapUpstreamError(t *testing.T) {
	m := NewMockNVR()
	defer m.Close()
	m.FailBootstrap(500)
	c := newTestClient(t, m)
	ctx := context.Background()

	loginOrFatal(t, ctx, c)

	_, err := c.Bootstrap(ctx)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Bootstrap against a 500 = %v, want ErrUpstream", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be an *APIError, got %T", err)
	}
	if apiErr.Status != 500 {
		t.Errorf("Status = %d, want 500", apiErr.Status)
	}
}
