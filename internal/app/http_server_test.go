package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/oda/internal/health"
	"github.com/vladislavdragonenkov/oda/internal/storage/memory"
	"github.com/vladislavdragonenkov/oda/internal/version"
)

func opsGet(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestOpsHandler_Routes(t *testing.T) {
	handler := opsHandler(healthcheck.NewHandler(version.Version()))

	for _, path := range []string{"/metrics", "/healthz", "/livez", "/readyz", "/version"} {
		if rec := opsGet(t, handler, path); rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}

	if body := opsGet(t, handler, "/livez").Body.String(); body != "ok" {
		t.Errorf("expected 'ok' from /livez, got %q", body)
	}
	if rec := opsGet(t, handler, "/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST /metrics, got %d", rec.Code)
	}
}

func TestOpsHandler_Version(t *testing.T) {
	rec := opsGet(t, opsHandler(healthcheck.NewHandler(version.Version())), "/version")

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var info version.BuildInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode /version: %v", err)
	}
	if info != version.Build() {
		t.Fatalf("unexpected build info: %+v", info)
	}
}

func TestOpsHandler_ReadinessReflectsDataset(t *testing.T) {
	healthHandler := healthcheck.NewHandler(version.Version())
	healthHandler.Register("dataset", healthcheck.DatasetLoaded(memory.NewDatasetRepository()))
	handler := opsHandler(healthHandler)

	if rec := opsGet(t, handler, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for empty dataset, got %d", rec.Code)
	}
	rec := opsGet(t, handler, "/healthz")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 from /healthz, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dataset") {
		t.Errorf("expected dataset check in /healthz body, got %s", rec.Body.String())
	}
	if rec := opsGet(t, handler, "/livez"); rec.Code != http.StatusOK {
		t.Errorf("liveness must not depend on dataset, got %d", rec.Code)
	}
}

func TestStartMetricsServer_ServesUntilCancel(t *testing.T) {
	logger := log.WithField("test", "ops-server")
	addr := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	srv := startMetricsServer(ctx, addr, logger, healthcheck.NewHandler(version.Version()))
	if srv == nil || srv.Addr != addr {
		t.Fatalf("unexpected server: %+v", srv)
	}

	url := fmt.Sprintf("http://%s/livez", addr)
	waitForHTTP(t, url)

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := http.Get(url); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("ops server should stop after context cancellation")
}

func TestStartMetricsServer_PortInUse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startMetricsServer(ctx, listener.Addr().String(), log.WithField("test", "ops-busy"), healthcheck.NewHandler(version.Version()))
	if srv == nil {
		t.Fatal("server must be returned even if listen fails in background")
	}
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("test", "http-shutdown")
	shutdownHTTP(nil, logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "up")
	})}
	go func() { _ = srv.Serve(listener) }()

	url := fmt.Sprintf("http://%s/", listener.Addr())
	waitForHTTP(t, url)

	shutdownHTTP(srv, logger)
	if _, err := http.Get(url); err == nil {
		t.Fatal("server should be stopped after shutdownHTTP")
	}
}

func waitForHTTP(t *testing.T, url string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("%s did not become reachable", url)
}

func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
