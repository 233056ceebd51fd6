/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Command processor runs the artifact and state store of the document
// processing service: it connects the state cache and the blob store, builds
// the job tracker and serves health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/altairalabs/docproc/internal/blobstore"
	"github.com/altairalabs/docproc/internal/config"
	"github.com/altairalabs/docproc/internal/httputil"
	"github.com/altairalabs/docproc/internal/jobs"
	"github.com/altairalabs/docproc/internal/statecache"
	"github.com/altairalabs/docproc/internal/tracing"
	"github.com/altairalabs/docproc/pkg/logging"
	"github.com/altairalabs/docproc/pkg/metrics"
)

// flags groups all CLI flags for the processor binary.
type flags struct {
	configPath  string
	healthAddr  string
	metricsAddr string
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.configPath, "config", "", "Path to a YAML config file (optional)")
	flag.StringVar(&f.healthAddr, "health-addr", "", "Health probe listen address (overrides config)")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "Metrics server listen address (overrides config)")
	flag.Parse()

	f.applyEnvFallbacks()
	return f
}

// applyEnvFallbacks applies environment variable overrides to flag defaults.
func (f *flags) applyEnvFallbacks() {
	envFallback(&f.configPath, "", "CONFIG_FILE")
	envFallback(&f.healthAddr, "", "HEALTH_ADDR")
	envFallback(&f.metricsAddr, "", "METRICS_ADDR")
}

// envFallback sets *dst from the environment variable envKey when *dst still
// equals the default value and the environment variable is non-empty.
func envFallback(dst *string, defaultVal, envKey string) {
	if *dst == defaultVal {
		if v := os.Getenv(envKey); v != "" {
			*dst = v
		}
	}
}

// applyOverrides copies explicitly set flags over the loaded options.
func (f *flags) applyOverrides(opts *config.Options) {
	if f.healthAddr != "" {
		opts.Service.HealthAddr = f.healthAddr
	}
	if f.metricsAddr != "" {
		opts.Service.MetricsAddr = f.metricsAddr
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f := parseFlags()

	// --- Config ---
	opts, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	f.applyOverrides(opts)

	// --- Logger ---
	log, syncLog, err := logging.NewLoggerWithOptions(opts.LoggingOptions())
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer syncLog()
	log = log.WithValues("service", opts.Service.Name)

	// --- Signal context ---
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	// --- Tracing ---
	tp, err := tracing.NewProvider(ctx, opts.TracingConfig())
	if err != nil {
		return fmt.Errorf("creating tracing provider: %w", err)
	}
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		if err := tp.Shutdown(shutCtx); err != nil {
			log.Error(err, "tracing shutdown error")
		}
	}()

	// --- Metrics ---
	storeMetrics := metrics.NewStoreMetrics()
	storeMetrics.Initialize()
	jobMetrics := metrics.NewJobMetrics()
	jobMetrics.Initialize()

	// --- Stores ---
	a, err := initApp(ctx, opts, log, storeMetrics, jobMetrics)
	if err != nil {
		return err
	}
	defer a.close(log)

	// --- Servers ---
	healthSrv := newHealthServer(opts.Service.HealthAddr, a.readinessChecks()...)
	metricsSrv := newMetricsServer(opts.Service.MetricsAddr)

	startHTTPServer(log, "health", opts.Service.HealthAddr, healthSrv)
	startHTTPServer(log, "metrics", opts.Service.MetricsAddr, metricsSrv)

	log.Info("processor ready",
		"health", opts.Service.HealthAddr,
		"metrics", opts.Service.MetricsAddr,
		"bucket", a.blobs.Bucket(),
		"tracing", opts.Tracing.Enabled,
	)

	// --- Wait for shutdown ---
	<-ctx.Done()
	log.Info("shutting down")
	shutdownServers(log, opts.Service.ShutdownTimeout, healthSrv, metricsSrv)
	return nil
}

// app holds the connected stores and the job components built on them.
// tracker and intake are the entry points handed to the request and queue
// layers that run in front of this process.
type app struct {
	cache   *statecache.Cache
	blobs   *blobstore.Store
	tracker *jobs.Tracker
	intake  *jobs.Intake
}

// initApp connects the state cache, then the blob store. Either failure
// aborts startup; the cache is closed again if the blob store cannot connect.
func initApp(
	ctx context.Context, opts *config.Options, log logr.Logger,
	rec metrics.Recorder, jobRec metrics.JobRecorder,
) (*app, error) {
	connectCtx, cancel := context.WithTimeout(ctx, opts.Service.ConnectTimeout)
	defer cancel()

	cache := statecache.New(opts.CacheConfig(), log, rec)
	if err := cache.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("connecting state cache: %w", err)
	}

	blobs := blobstore.New(opts.BlobConfig(), log, rec)
	if err := blobs.Connect(connectCtx); err != nil {
		_ = cache.Close()
		return nil, fmt.Errorf("connecting blob store: %w", err)
	}

	tracker := jobs.NewTracker(cache, log, opts.Cache.JobStatusTTL).WithMetrics(jobRec)
	return &app{
		cache:   cache,
		blobs:   blobs,
		tracker: tracker,
		intake:  jobs.NewIntake(blobs, tracker, opts.JobLimits(), log).WithMetrics(jobRec),
	}, nil
}

func (a *app) readinessChecks() []httputil.Check {
	return []httputil.Check{
		{Name: metrics.ComponentStateCache, Ping: a.cache.Ping},
		{Name: metrics.ComponentBlobStore, Ping: a.blobs.Ping},
	}
}

func (a *app) close(log logr.Logger) {
	if err := a.cache.Close(); err != nil {
		log.Error(err, "state cache close error")
	}
	if err := a.blobs.Close(); err != nil {
		log.Error(err, "blob store close error")
	}
}

// startHTTPServer starts an HTTP server in a background goroutine.
func startHTTPServer(log logr.Logger, name, addr string, srv *http.Server) {
	go func() {
		log.Info("starting server", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "server error", "server", name)
		}
	}()
}

// shutdownServers gracefully stops all servers within timeout.
func shutdownServers(log logr.Logger, timeout time.Duration, servers ...*http.Server) {
	shutCtx, shutCancel := context.WithTimeout(context.Background(), timeout)
	defer shutCancel()

	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Error(err, "server shutdown error", "addr", srv.Addr)
		}
	}
}

// newMetricsServer creates a dedicated HTTP server for Prometheus metrics.
func newMetricsServer(addr string) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{Addr: addr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}
}

// newHealthServer creates an HTTP server for health and readiness probes.
func newHealthServer(addr string, checks ...httputil.Check) *http.Server {
	healthMux := http.NewServeMux()
	healthMux.Handle("GET /healthz", httputil.LivenessHandler())
	healthMux.Handle("GET /readyz", httputil.ReadinessHandler(checks...))
	return &http.Server{Addr: addr, Handler: healthMux, ReadHeaderTimeout: 10 * time.Second}
}
