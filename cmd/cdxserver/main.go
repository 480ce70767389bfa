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
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/novatechflow/zipnum/internal/config"
	fetchhealth "github.com/novatechflow/zipnum/pkg/health"
	"github.com/novatechflow/zipnum/pkg/metadata"
	"github.com/novatechflow/zipnum/pkg/storage"
	"github.com/novatechflow/zipnum/pkg/zipnum"
)

const (
	healthServiceName   = "zipnum.cdx"
	healthPollInterval  = 5 * time.Second
	shutdownGracePeriod = 2 * time.Second
)

func main() {
	configPath := flag.String("config", os.Getenv("ZIPNUM_CONFIG"), "path to the YAML config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log.Level)
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	lis, err := net.Listen("tcp", cfg.Server.GRPCListen)
	if err != nil {
		logger.Error("grpc health listen error", "error", err)
		os.Exit(1)
	}
	startHealthServer(ctx, lis, app.monitor, logger)

	if err := app.serve(ctx, cfg.Server.Listen); err != nil {
		logger.Error("cdx server error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	cluster *zipnum.Cluster
	monitor *fetchhealth.Monitor
	logger  *slog.Logger
	closers []io.Closer
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		monitor: fetchhealth.NewMonitor(fetchhealth.Config{}),
		logger:  logger,
	}
	var auth storage.AuthTokenSupplier
	if cfg.Auth.Token != "" {
		auth = storage.StaticToken(cfg.Auth.Token)
	}
	loader, err := buildLoader(ctx, cfg, auth, logger)
	if err != nil {
		return nil, err
	}
	var etcdSource *metadata.EtcdDirectorySource
	zcfg := zipnum.Config{
		LocationOverride:  cfg.Index.LocationOverride,
		MaxBlocksPerPlan:  cfg.Index.MaxBlocksPerPlan,
		ReloadInterval:    cfg.Index.ReloadInterval(),
		AuthTokenSupplier: auth,
		Compression:       cfg.Index.Compression,
		ReadAhead:         cfg.Index.ReadAhead,
		CacheBytes:        cfg.Index.CacheBytes,
		Loader:            loader,
		Logger:            logger,
		OnFetch:           a.monitor.RecordFetch,
	}
	if cfg.Directory.Backend == "etcd" {
		etcdSource, err = metadata.NewEtcdDirectorySource(metadata.EtcdDirectoryConfig{
			Endpoints: cfg.Directory.Etcd.Endpoints,
			Username:  cfg.Directory.Etcd.Username,
			Password:  cfg.Directory.Etcd.Password,
			Key:       cfg.Directory.Etcd.Key,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, etcdSource)
		zcfg.DirectorySource = etcdSource
	}
	cluster, err := zipnum.NewCluster(ctx, cfg.Index.SummaryPath, zcfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cluster = cluster
	if etcdSource != nil && cfg.Directory.Etcd.Watch {
		etcdSource.Watch(ctx, func() {
			logger.Info("location directory changed in etcd", "key", cfg.Directory.Etcd.Key)
			cluster.Directory().Expire()
		})
	}
	return a, nil
}

func buildLoader(ctx context.Context, cfg config.Config, auth storage.AuthTokenSupplier, logger *slog.Logger) (*storage.MultiLoader, error) {
	loader := storage.NewMultiLoader().
		Register(storage.NewFileLoader(), "file").
		Register(storage.NewHTTPLoader(storage.HTTPLoaderConfig{
			Timeout:    cfg.HTTP.Timeout(),
			Auth:       auth,
			CookieName: cfg.Auth.CookieName,
		}), "http", "https")
	if cfg.S3.Region == "" {
		return loader, nil
	}
	s3Loader, err := storage.NewS3Loader(ctx, storage.S3Config{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		ForcePathStyle:  cfg.S3.PathStyle,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		SessionToken:    cfg.S3.SessionToken,
	})
	if err != nil {
		return nil, fmt.Errorf("build s3 loader: %w", err)
	}
	logger.Info("s3 block loader enabled", "region", cfg.S3.Region, "endpoint", cfg.S3.Endpoint)
	return loader.Register(s3Loader, "s3"), nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/cdx", a.handleCDX)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "ok state=%s\n", a.monitor.State())
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		snap := a.monitor.Snapshot()
		if snap.State == fetchhealth.StateUnavailable {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready state=%s error_rate=%.2f\n", snap.State, snap.ErrorRate)
		} else {
			fmt.Fprintf(w, "ready state=%s partitions=%d error_rate=%.2f\n", snap.State, a.cluster.Directory().Len(), snap.ErrorRate)
		}
		for _, loc := range snap.FailingLocations() {
			fmt.Fprintf(w, "failing location=%s attempts=%d\n", loc, snap.Failing[loc])
		}
	})
	return mux
}

func (a *app) serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.logger.Info("cdx server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) handleCDX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)
	params := r.URL.Query()
	q := zipnum.Query{
		StartKey:   params.Get("key"),
		EndKey:     params.Get("end_key"),
		PagedIndex: parseFlag(params.Get("paged")),
	}
	logger := a.logger.With("request_id", requestID, "start", q.StartKey, "end", q.EndKey, "paged", q.PagedIndex)
	started := time.Now()

	stream, err := a.cluster.Query(r.Context(), q)
	if err != nil {
		a.fail(w, logger, err)
		return
	}
	defer stream.Close()

	// Pull the first record before committing to a status code.
	first, err := stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		a.fail(w, logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if errors.Is(err, io.EOF) || r.Method == http.MethodHead {
		logger.Debug("cdx query served", "records", 0, "elapsed", time.Since(started).String())
		return
	}

	out := bufio.NewWriter(w)
	records := 0
	rec := first
	for {
		out.Write(rec)
		out.WriteByte('\n')
		records++
		if rec, err = stream.Next(); err != nil {
			break
		}
	}
	if flushErr := out.Flush(); flushErr != nil {
		logger.Debug("client went away", "error", flushErr)
		return
	}
	if !errors.Is(err, io.EOF) {
		// Headers are out; the truncated body is all the client gets.
		logger.Error("cdx stream failed", "records", records, "error", err)
		return
	}
	logger.Debug("cdx query served", "records", records, "elapsed", time.Since(started).String())
}

func (a *app) fail(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("cdx query failed", "status", status, "error", err)
	} else {
		logger.Info("cdx query rejected", "status", status, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, zipnum.ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, zipnum.ErrUnknownPartition):
		return http.StatusNotFound
	case errors.Is(err, zipnum.ErrBlockUnavailable),
		errors.Is(err, zipnum.ErrNoLocationsFound),
		errors.Is(err, zipnum.ErrDirectoryReload):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func parseFlag(val string) bool {
	if val == "" {
		return false
	}
	if n, err := strconv.Atoi(val); err == nil {
		return n != 0
	}
	parsed, err := strconv.ParseBool(val)
	return err == nil && parsed
}

// startHealthServer serves grpc.health.v1 on lis and mirrors the fetch
// monitor's state into it until ctx is done.
func startHealthServer(ctx context.Context, lis net.Listener, monitor *fetchhealth.Monitor, logger *slog.Logger) *health.Server {
	hs := health.NewServer()
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	update := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if monitor.State() == fetchhealth.StateUnavailable {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(healthServiceName, status)
	}
	update()
	go func() {
		ticker := time.NewTicker(healthPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				done := make(chan struct{})
				go func() {
					server.GracefulStop()
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(shutdownGracePeriod):
					server.Stop()
				}
				return
			case <-ticker.C:
				update()
			}
		}
	}()
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("grpc health server error", "error", err)
		}
	}()
	return hs
}

func newLogger(levelName string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	return slog.New(handler).With("component", "cdxserver")
}
