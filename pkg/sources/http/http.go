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

// Package http accepts events over HTTP. Events are dispatched before the request is answered, so a
// full window input slows the producer down.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/sources"
)

const (
	// KeyStream names the stream of an N-Quads request body
	KeyStream = "X-Rsp-Stream"
	// KeyEventTime is the timestamp of an N-Quads request body, epoch milliseconds or a date
	KeyEventTime = "X-Rsp-Event-Time"
)

type httpSource struct {
	name        string
	addr        string
	auth        string
	maxBodySize int64
	ready       atomic.Bool
	logger      *zap.SugaredLogger
	listener    net.Listener
	server      *http.Server
	dispatcher  *sources.Dispatcher
}

var _ sources.Source = (*httpSource)(nil)

type Option func(*httpSource) error

// WithAddr sets the listen address, ":0" picks a free port
func WithAddr(addr string) Option {
	return func(o *httpSource) error {
		o.addr = addr
		return nil
	}
}

// WithAuthToken requires "Authorization: Bearer <token>" on every event request
func WithAuthToken(token string) Option {
	return func(o *httpSource) error {
		o.auth = token
		return nil
	}
}

// WithMaxBodySize limits the size of a request body in bytes
func WithMaxBodySize(size int64) Option {
	return func(o *httpSource) error {
		if size <= 0 {
			return fmt.Errorf("max body size must be positive, got %d", size)
		}
		o.maxBodySize = size
		return nil
	}
}

// WithLogger is used to return logger information
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *httpSource) error {
		o.logger = l
		return nil
	}
}

// NewHttpSource creates a new http source and binds its listener, Run serves it.
//
// POST /events takes one JSON event. POST /quads takes an N-Quads body, its stream and timestamp come
// from the X-Rsp-Stream and X-Rsp-Event-Time headers.
func NewHttpSource(ctx context.Context, name string, provider sources.StreamProvider, opts ...Option) (sources.Source, error) {
	h := &httpSource{
		name:        name,
		addr:        ":8443",
		maxBodySize: 4 * 1024 * 1024,
		logger:      logging.FromContext(ctx),
	}
	for _, o := range opts {
		if err := o(h); err != nil {
			return nil, err
		}
	}
	h.logger = h.logger.With("source", name)
	h.dispatcher = sources.NewDispatcher(name, provider, h.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			http.Error(w, "http source not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/events", h.handle(func(r *http.Request, body []byte) (sources.Event, error) {
		return sources.DecodeEvent(body)
	}))
	mux.HandleFunc("/quads", h.handle(func(r *http.Request, body []byte) (sources.Event, error) {
		ev := sources.Event{Stream: r.Header.Get(KeyStream), Quads: strings.Split(string(body), "\n")}
		if ev.Stream == "" {
			return ev, fmt.Errorf("%w: missing %s header", sources.ErrInvalidEvent, KeyStream)
		}
		ts, err := parseEventTime(r.Header.Get(KeyEventTime))
		if err != nil {
			return ev, fmt.Errorf("%w: %s header: %v", sources.ErrInvalidEvent, KeyEventTime, err)
		}
		ev.Timestamp = ts
		return ev, nil
	}))

	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = listener
	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return h, nil
}

// handle answers 204 once the event is added, 400 for invalid events, 404 for unknown streams and
// 503 once the engine is closed.
func (h *httpSource) handle(decode func(r *http.Request, body []byte) (sources.Event, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.auth != "" && r.Header.Get("Authorization") != "Bearer "+h.auth {
			http.Error(w, "request not authorized", http.StatusForbidden)
			return
		}
		if !h.ready.Load() {
			http.Error(w, "http source not ready", http.StatusServiceUnavailable)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
		_ = r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ev, err := decode(r, body)
		if err == nil {
			err = h.dispatcher.Dispatch(r.Context(), ev)
		}
		switch {
		case err == nil:
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, sources.ErrInvalidEvent):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, engine.ErrStreamNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			h.logger.Errorw("Failed to dispatch event", zap.Error(err))
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		}
	}
}

// GetName returns the name of the source.
func (h *httpSource) GetName() string {
	return h.name
}

// Addr returns the address the source listens on.
func (h *httpSource) Addr() string {
	return h.listener.Addr().String()
}

// Run serves requests until ctx is done.
func (h *httpSource) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		h.logger.Infow("Starting http source server", zap.String("addr", h.Addr()))
		errCh <- h.server.Serve(h.listener)
	}()
	h.ready.Store(true)
	select {
	case <-ctx.Done():
		h.ready.Store(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		h.logger.Info("Shutdown http source server")
		return nil
	case err := <-errCh:
		h.ready.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (h *httpSource) Watermarks() map[string]int64 {
	return h.dispatcher.Watermarks()
}

// Close stops the server if Run did not already.
func (h *httpSource) Close() error {
	h.ready.Store(false)
	if err := h.server.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	if err := h.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// parseEventTime reads epoch milliseconds, or any date layout dateparse knows without ambiguity.
func parseEventTime(value string) (int64, error) {
	if ts, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ts, nil
	}
	t, err := dateparse.ParseStrict(value)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
