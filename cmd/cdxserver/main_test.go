// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/novatechflow/zipnum/internal/config"
	fetchhealth "github.com/novatechflow/zipnum/pkg/health"
	"github.com/novatechflow/zipnum/pkg/zipnum"
)

// writeIndex lays out one partition holding a unit per key, two records each.
func writeIndex(t *testing.T, keys []string) string {
	t.Helper()
	dir := t.TempDir()
	var blob []byte
	var summary strings.Builder
	for _, key := range keys {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		fmt.Fprintf(zw, "%s 001\n%s 002\n", key, key)
		if err := zw.Close(); err != nil {
			t.Fatalf("gzip close: %v", err)
		}
		fmt.Fprintf(&summary, "%s 001\tpart-0\t%d\t%d\n", key, len(blob), buf.Len())
		blob = append(blob, buf.Bytes()...)
	}
	partPath := filepath.Join(dir, "part-0.gz")
	summaryPath := filepath.Join(dir, "index.summary")
	files := map[string][]byte{
		partPath:                        blob,
		summaryPath:                     []byte(summary.String()),
		filepath.Join(dir, "index.loc"): []byte("part-0\t" + partPath + "\n"),
	}
	for path, data := range files {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return summaryPath
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := config.Config{}
	cfg.Index.SummaryPath = writeIndex(t, []string{"a", "b", "c", "d"})
	a, err := newApp(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header
}

func TestCDXQuery(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t).routes())
	defer srv.Close()

	status, body, header := get(t, srv, "/cdx?key=b&end_key=d")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", status, body)
	}
	if body != "b 001\nb 002\nc 001\nc 002\n" {
		t.Fatalf("unexpected body %q", body)
	}
	if header.Get("X-Request-Id") == "" || !strings.HasPrefix(header.Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected headers %v", header)
	}

	status, body, _ = get(t, srv, "/cdx?key=x")
	if status != http.StatusOK || body != "" {
		t.Fatalf("expected empty result, got %d %q", status, body)
	}
}

func TestCDXPagedIndex(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t).routes())
	defer srv.Close()

	status, body, _ := get(t, srv, "/cdx?key=b&end_key=c&paged=1")
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	lines := strings.Split(strings.TrimSuffix(body, "\n"), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "a 001\tpart-0\t0\t") || !strings.HasPrefix(lines[1], "b 001\tpart-0\t") {
		t.Fatalf("unexpected summary lines %q", body)
	}
}

func TestCDXInvalidRange(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t).routes())
	defer srv.Close()

	if status, body, _ := get(t, srv, "/cdx?key=d&end_key=b"); status != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %q", status, body)
	}
	resp, err := http.Post(srv.URL+"/cdx", "text/plain", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestCDXUnavailableBlocks(t *testing.T) {
	summary := writeIndex(t, []string{"a"})
	if err := os.Remove(filepath.Join(filepath.Dir(summary), "part-0.gz")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	cfg := config.Config{}
	cfg.Index.SummaryPath = summary
	broken, err := newApp(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	brokenSrv := httptest.NewServer(broken.routes())
	defer brokenSrv.Close()
	if status, body, _ := get(t, brokenSrv, "/cdx?key=a"); status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d %q", status, body)
	}
	if broken.monitor.Snapshot().ErrorRate == 0 {
		t.Fatalf("failed fetch must reach the health monitor")
	}
	partPath := filepath.Join(filepath.Dir(summary), "part-0.gz")
	status, body, _ := get(t, brokenSrv, "/readyz")
	if status != http.StatusServiceUnavailable || !strings.Contains(body, "failing location="+partPath+" attempts=") {
		t.Fatalf("expected failing location in readyz, got %d %q", status, body)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t).routes())
	defer srv.Close()

	if status, body, _ := get(t, srv, "/healthz"); status != http.StatusOK || !strings.Contains(body, "state=healthy") {
		t.Fatalf("unexpected healthz %d %q", status, body)
	}
	if status, body, _ := get(t, srv, "/readyz"); status != http.StatusOK || !strings.Contains(body, "partitions=1") {
		t.Fatalf("unexpected readyz %d %q", status, body)
	}
	get(t, srv, "/cdx?key=a&end_key=b")
	if status, body, _ := get(t, srv, "/metrics"); status != http.StatusOK || !strings.Contains(body, "zipnum_queries_total") {
		t.Fatalf("expected zipnum metrics, got %d", status)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", zipnum.ErrInvalidRange), http.StatusBadRequest},
		{&zipnum.PartitionError{Kind: zipnum.ErrUnknownPartition, Partition: "p"}, http.StatusNotFound},
		{&zipnum.PartitionError{Kind: zipnum.ErrNoLocationsFound, Partition: "p"}, http.StatusServiceUnavailable},
		{&zipnum.BlockUnavailableError{Last: errors.New("down")}, http.StatusServiceUnavailable},
		{&zipnum.BlockCorruptError{Err: errors.New("bad")}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestParseFlag(t *testing.T) {
	for val, want := range map[string]bool{"": false, "0": false, "1": true, "true": true, "false": false, "yes": false} {
		if got := parseFlag(val); got != want {
			t.Fatalf("parseFlag(%q) = %v, want %v", val, got, want)
		}
	}
}

func TestGRPCHealth(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor := fetchhealth.NewMonitor(fetchhealth.Config{})
	startHealthServer(ctx, lis, monitor, testLogger())

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	resp, err := healthpb.NewHealthClient(conn).Check(callCtx, &healthpb.HealthCheckRequest{Service: healthServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status %v", resp.GetStatus())
	}
}
