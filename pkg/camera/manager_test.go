package camera

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config invalid: %v", errs)
	}

	bad := Config{StreamURL: "192.168.4.1/stream", Rotation: 45, ProbeTimeout: -1}
	if errs := bad.Validate(); len(errs) != 3 {
		t.Errorf("errors = %v, want 3", errs)
	}
}

func TestProbeReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("--frame\r\n"))
	}))
	defer srv.Close()

	m, err := NewManager(Config{StreamURL: srv.URL + "/stream", Rotation: 180})
	if err != nil {
		t.Fatal(err)
	}

	res := m.Probe(context.Background())
	if !res.Reachable || res.Status != http.StatusOK {
		t.Fatalf("probe = %+v", res)
	}
	if !strings.HasPrefix(res.ContentType, "multipart/x-mixed-replace") {
		t.Errorf("content type = %s", res.ContentType)
	}
	if m.LastProbe() == nil || !m.LastProbe().Reachable {
		t.Error("LastProbe not recorded")
	}
}

func TestProbeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	m, _ := NewManager(Config{StreamURL: srv.URL, Rotation: 0})

	res := m.Probe(context.Background())
	if res.Reachable || res.Status != http.StatusNotFound {
		t.Errorf("probe = %+v", res)
	}

	srv.Close()
	res = m.Probe(context.Background())
	if res.Reachable || res.Error == "" {
		t.Errorf("probe of closed server = %+v", res)
	}
}

func TestSetConfig(t *testing.T) {
	m, _ := NewManager(DefaultConfig())

	var got Config
	m.OnConfigChange = func(cfg Config) { got = cfg }

	cfg := DefaultConfig()
	cfg.Rotation = 0
	if err := m.SetConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if got.Rotation != 0 || m.GetConfig().Rotation != 0 {
		t.Errorf("rotation not applied")
	}

	cfg.Rotation = 33
	if err := m.SetConfig(cfg); err == nil {
		t.Error("expected validation error")
	}
}
