package prometheus_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/fluxorio/fluxpool/pkg/observability/prometheus"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp/fasthttputil"
)

func TestServeListener(t *testing.T) {
	reg := promclient.NewRegistry()
	m := prometheus.NewMetrics(reg)
	m.TasksSubmitted.WithLabelValues("assets").Add(5)

	ln := fasthttputil.NewInmemoryListener()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- prometheus.ServeListener(ctx, ln, reg)
	}()

	// Create HTTP client that uses in-memory listener
	httpClient := &http.Client{
		Transport: &http.Transport{
			Dial: func(network, addr string) (net.Conn, error) {
				return ln.Dial()
			},
		},
	}

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := httpClient.Get("http://test" + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("Failed to read response body: %v", err)
		}
		return resp.StatusCode, string(body)
	}

	status, body := get("/metrics")
	if status != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", status)
	}
	if !strings.Contains(body, `fluxpool_tasks_submitted_total{pool="assets"} 5`) {
		t.Errorf("metrics output missing submitted counter:\n%s", body)
	}

	if status, body := get("/healthz"); status != http.StatusOK || body != "ok" {
		t.Errorf("GET /healthz = (%d, %q), want (200, ok)", status, body)
	}
	if status, _ := get("/unknown"); status != http.StatusNotFound {
		t.Errorf("GET /unknown status = %d, want 404", status)
	}

	httpClient.CloseIdleConnections()
	cancel()
	if err := <-done; err != nil {
		t.Errorf("ServeListener() error = %v", err)
	}
}
