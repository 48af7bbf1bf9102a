/*
Copyright 2022 The Numaproj Authors.

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

package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
)

const (
	// DefaultAddr is the metrics server listen address
	DefaultAddr = ":2469"
	// EnvPPROF enables the pprof endpoints when set to "true"
	EnvPPROF = "RSP_PPROF"
)

// pending is a gauge used to export the pending work of every registered reader
var pending = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "pending",
	Help: "Batches accepted and not yet processed",
}, []string{LabelEngine})

// metricsServer runs an HTTP server to:
// 1. Expose metrics;
// 2. Serve an endpoint to execute health checks
type metricsServer struct {
	addr            string
	refreshInterval time.Duration
	healthCheckers  []HealthChecker
	pendingReaders  []PendingReader
	listener        net.Listener
}

type Option func(*metricsServer)

// WithAddr sets the listen address, ":0" picks a free port
func WithAddr(addr string) Option {
	return func(m *metricsServer) {
		m.addr = addr
	}
}

// WithRefreshInterval sets how often to refresh the pending information
func WithRefreshInterval(d time.Duration) Option {
	return func(m *metricsServer) {
		m.refreshInterval = d
	}
}

// WithHealthChecker appends a health checker run by /readyz
func WithHealthChecker(hc HealthChecker) Option {
	return func(m *metricsServer) {
		m.healthCheckers = append(m.healthCheckers, hc)
	}
}

// WithPendingReader appends a reader whose pending work is exported
func WithPendingReader(r PendingReader) Option {
	return func(m *metricsServer) {
		m.pendingReaders = append(m.pendingReaders, r)
	}
}

// NewMetricsServer returns a Prometheus metrics server instance, which can be used to start an HTTP service to expose Prometheus metrics.
func NewMetricsServer(opts ...Option) *metricsServer {
	m := &metricsServer{
		addr:            DefaultAddr,
		refreshInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Addr returns the address the server listens on, empty before Start.
func (ms *metricsServer) Addr() string {
	if ms.listener == nil {
		return ""
	}
	return ms.listener.Addr().String()
}

// Start starts the HTTP service to expose metrics, it returns a shutdown function and an error if any
func (ms *metricsServer) Start(ctx context.Context) (func(ctx context.Context) error, error) {
	log := logging.FromContext(ctx)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		cctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		for _, hc := range ms.healthCheckers {
			if err := hc.IsHealthy(cctx); err != nil {
				log.Errorw("Failed to execute health check", zap.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(err.Error()))
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	pprofEnabled := os.Getenv(logging.EnvDebug) == "true" || os.Getenv(EnvPPROF) == "true"
	if pprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		log.Info("Not enabling pprof debug endpoints")
	}

	listener, err := net.Listen("tcp", ms.addr)
	if err != nil {
		return nil, err
	}
	ms.listener = listener
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pendingCtx, cancelPending := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ms.exposePending(pendingCtx)
	}()

	go func() {
		log.Infow("Starting metrics HTTP server", zap.String("addr", ms.Addr()))
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Failed to serve metrics", zap.Error(err))
		}
		log.Info("Metrics server shutdown")
	}()
	return func(ctx context.Context) error {
		cancelPending()
		<-done
		return httpServer.Shutdown(ctx)
	}, nil
}

// exposePending refreshes the pending gauge of every reader until ctx is done.
func (ms *metricsServer) exposePending(ctx context.Context) {
	if len(ms.pendingReaders) == 0 {
		return
	}
	log := logging.FromContext(ctx)
	ticker := time.NewTicker(ms.refreshInterval)
	defer ticker.Stop()
	for {
		for _, r := range ms.pendingReaders {
			n, err := r.Pending(ctx)
			if err != nil {
				log.Debugw("Failed to read pending", zap.String("reader", r.GetName()), zap.Error(err))
				continue
			}
			pending.WithLabelValues(r.GetName()).Set(float64(n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
