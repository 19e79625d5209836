// Package client owns the single outbound *http.Client the Segment Provider
// uses. Lounge Sessions do not go through it: their websocket connections
// dial with the websocket package's default dialer. Its proxy
// behaviour depends on the use_proxy config flag; toggling it rebuilds the
// client. Consumers must fetch the client through Manager.Client() on every
// use rather than capturing a reference, so an in-flight request started
// before a rebuild never observes a half-swapped transport and new
// requests always see the current generation.
package client

import (
	"log"
	"net/http"
	"sync"
	"time"
)

const timeout = 30 * time.Second

type Manager struct {
	mu       sync.RWMutex
	current  *http.Client
	useProxy bool
	tracing  bool
}

// New builds a Manager with the given initial flags.
func New(useProxy, tracing bool) *Manager {
	m := &Manager{useProxy: useProxy, tracing: tracing}
	m.current = m.build()
	return m
}

// Client returns the current generation's client. Safe for concurrent use.
func (m *Manager) Client() *http.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetUseProxy rebuilds the client if the flag actually changed.
func (m *Manager) SetUseProxy(useProxy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if useProxy == m.useProxy {
		return
	}
	m.useProxy = useProxy
	old := m.current
	m.current = m.build()
	old.CloseIdleConnections()
}

// SetTracing toggles request/response tracing on the outbound client,
// rebuilding it if the flag changed.
func (m *Manager) SetTracing(tracing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tracing == m.tracing {
		return
	}
	m.tracing = tracing
	old := m.current
	m.current = m.build()
	old.CloseIdleConnections()
}

// Close releases the current generation's idle connections. Called once,
// by the Core Runtime, after every supervisor has joined.
func (m *Manager) Close() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.current.CloseIdleConnections()
}

func (m *Manager) build() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if m.useProxy {
		transport.Proxy = http.ProxyFromEnvironment
	} else {
		transport.Proxy = nil
	}

	var rt http.RoundTripper = transport
	if m.tracing {
		rt = &tracingTransport{next: transport}
	}

	return &http.Client{Transport: rt, Timeout: timeout}
}

// tracingTransport logs every request's method, URL, status and duration,
// mirroring the optional request tracer the outbound client can enable.
type tracingTransport struct {
	next http.RoundTripper
}

func (t *tracingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("client: %s %s failed after %s: %v", req.Method, req.URL, elapsed, err)
		return resp, err
	}
	log.Printf("client: %s %s -> %d (%s)", req.Method, req.URL, resp.StatusCode, elapsed)
	return resp, err
}
