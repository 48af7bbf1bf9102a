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

// Package sources feeds timestamped batches of quads into the streams of an engine.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

// ErrInvalidEvent is returned for events which cannot be decoded or carry malformed quads.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one batch of N-Quads lines added to a stream at one timestamp.
type Event struct {
	Stream    string   `json:"stream"`
	Timestamp int64    `json:"timestamp"`
	Quads     []string `json:"quads"`
}

// DecodeEvent decodes a JSON event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if strings.TrimSpace(ev.Stream) == "" {
		return Event{}, fmt.Errorf("%w: missing stream", ErrInvalidEvent)
	}
	return ev, nil
}

// ParseQuads parses the N-Quads lines of the event, blank lines and comments are skipped.
func (ev Event) ParseQuads() ([]rdf.Quad, error) {
	quads := make([]rdf.Quad, 0, len(ev.Quads))
	for i, line := range ev.Quads {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		q, err := rdf.ParseQuad(line)
		if err != nil {
			return nil, fmt.Errorf("%w: quad %d: %v", ErrInvalidEvent, i, err)
		}
		quads = append(quads, q)
	}
	return quads, nil
}

// StreamProvider resolves stream handles, *engine.Engine implements it.
type StreamProvider interface {
	GetStream(name string) (*engine.Stream, bool)
}

// Source feeds events into stream handles.
type Source interface {
	GetName() string
	// Run blocks until the input is exhausted or ctx is done.
	Run(ctx context.Context) error
	// Watermarks returns the greatest timestamp dispatched to every stream.
	Watermarks() map[string]int64
	Close() error
}

// Dispatcher adds events to the streams of a provider and tracks the greatest timestamp per stream.
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	name     string
	provider StreamProvider
	logger   *zap.SugaredLogger

	mu         sync.Mutex
	watermarks map[string]int64
}

// NewDispatcher returns a Dispatcher, name labels its metrics.
func NewDispatcher(name string, provider StreamProvider, logger *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		name:       name,
		provider:   provider,
		logger:     logger,
		watermarks: make(map[string]int64),
	}
}

// Dispatch adds the quads of ev to its stream.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	quads, err := ev.ParseQuads()
	if err != nil {
		invalidEvents.WithLabelValues(d.name, "quads").Inc()
		return err
	}
	s, ok := d.provider.GetStream(ev.Stream)
	if !ok {
		invalidEvents.WithLabelValues(d.name, "stream").Inc()
		return fmt.Errorf("%w: %s", engine.ErrStreamNotFound, ev.Stream)
	}
	if err := s.AddQuads(ctx, quads, ev.Timestamp); err != nil {
		return err
	}
	eventsRead.WithLabelValues(d.name).Inc()
	quadsRead.WithLabelValues(d.name).Add(float64(len(quads)))

	d.mu.Lock()
	defer d.mu.Unlock()
	if wm, ok := d.watermarks[ev.Stream]; !ok || ev.Timestamp > wm {
		d.watermarks[ev.Stream] = ev.Timestamp
	}
	return nil
}

// DispatchBytes decodes a JSON event and dispatches it.
func (d *Dispatcher) DispatchBytes(ctx context.Context, data []byte) error {
	ev, err := DecodeEvent(data)
	if err != nil {
		invalidEvents.WithLabelValues(d.name, "decode").Inc()
		return err
	}
	return d.Dispatch(ctx, ev)
}

// Watermarks returns a copy of the greatest timestamp dispatched per stream.
func (d *Dispatcher) Watermarks() map[string]int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int64, len(d.watermarks))
	for k, v := range d.watermarks {
		out[k] = v
	}
	return out
}

// Recoverable reports whether a source may skip the event which caused err and keep going.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInvalidEvent) || errors.Is(err, engine.ErrStreamNotFound)
}
