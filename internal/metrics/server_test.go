package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestServer_ReadyTransition(t *testing.T) {
	notReady := errors.New("ramp in progress")
	s := NewServer(ServerConfig{
		Gatherer: prometheus.NewRegistry(),
		Ready:    func() error { return notReady },
	}, discardLogger())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("GET /readyz = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ramp in progress") {
		t.Errorf("body = %q, want the readiness error", rec.Body.String())
	}

	notReady = nil
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /readyz = %d, want 200", rec.Code)
	}
}

func TestServer_NoExtraHandler(t *testing.T) {
	s := NewServer(ServerConfig{Gatherer: prometheus.NewRegistry()}, discardLogger())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sipp/instances", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /sipp/instances = %d, want 404", rec.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	s := NewServer(ServerConfig{Addr: "127.0.0.1:0", Gatherer: prometheus.NewRegistry()}, discardLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if strings.HasSuffix(s.Addr(), ":0") {
		t.Fatalf("Addr() = %q, want the bound port", s.Addr())
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestServer_StartBindError(t *testing.T) {
	first := NewServer(ServerConfig{Addr: "127.0.0.1:0", Gatherer: prometheus.NewRegistry()}, discardLogger())
	if err := first.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer first.Shutdown(context.Background())

	second := NewServer(ServerConfig{Addr: first.Addr(), Gatherer: prometheus.NewRegistry()}, discardLogger())
	if err := second.Start(); err == nil {
		t.Error("Start() on a bound address should fail")
	}
}
