package camera

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/teslashibe/go-petpal/internal/httpc"
)

// ProbeResult is the outcome of one reachability check.
type ProbeResult struct {
	URL         string        `json:"url"`
	Reachable   bool          `json:"reachable"`
	Status      int           `json:"status,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	Latency     time.Duration `json:"latency_ns"`
	Error       string        `json:"error,omitempty"`
	CheckedAt   time.Time     `json:"checked_at"`
}

// Manager holds the current camera configuration and handles updates.
type Manager struct {
	config Config
	client *http.Client
	mu     sync.RWMutex

	last *ProbeResult

	// Callback when config changes
	OnConfigChange func(cfg Config)
}

// NewManager creates a new camera manager with cfg.
func NewManager(cfg Config) (*Manager, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("camera: validation failed: %v", errs)
	}
	return &Manager{config: cfg, client: httpc.Client}, nil
}

// GetConfig returns the current camera configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetConfig updates the camera configuration.
func (m *Manager) SetConfig(cfg Config) error {
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("camera: validation failed: %v", errs)
	}

	m.mu.Lock()
	m.config = cfg
	m.last = nil
	callback := m.OnConfigChange
	m.mu.Unlock()

	if callback != nil {
		callback(cfg)
	}
	return nil
}

// LastProbe returns the most recent probe result, or nil.
func (m *Manager) LastProbe() *ProbeResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Probe opens the stream, records status and content type, and closes it
// without reading frames. Failures are reported in the result.
func (m *Manager) Probe(ctx context.Context) ProbeResult {
	cfg := m.GetConfig()
	timeout := cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res := ProbeResult{URL: cfg.StreamURL, CheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.StreamURL, nil)
	if err != nil {
		res.Error = err.Error()
		return m.record(res)
	}

	resp, err := m.client.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Error = err.Error()
		return m.record(res)
	}
	resp.Body.Close()

	res.Status = resp.StatusCode
	res.ContentType = resp.Header.Get("Content-Type")
	res.Reachable = resp.StatusCode == http.StatusOK
	if !res.Reachable {
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return m.record(res)
}

func (m *Manager) record(res ProbeResult) ProbeResult {
	m.mu.Lock()
	m.last = &res
	m.mu.Unlock()
	return res
}
