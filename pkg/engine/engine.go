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

// Package engine runs a continuous query. It owns one sliding windower and one ingestion goroutine
// per declared window, routes producer batches to the windows reading their stream, and evaluates the
// embedded query every time a window emits.
//
// Window emissions are evaluated over the emitted content merged with the content every sibling window
// holds at the same point in event time, plus the static background data.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/numaproj/numaflow-rsp/pkg/r2r"
	"github.com/numaproj/numaflow-rsp/pkg/r2r/sparql"
	"github.com/numaproj/numaflow-rsp/pkg/rdf"
	"github.com/numaproj/numaflow-rsp/pkg/rspql"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/window"
	"github.com/numaproj/numaflow-rsp/pkg/window/sliding"
)

// sentinel is the quad CloseStream adds to push the event time of a stream forward.
var sentinel = rdf.NewTriple(rdf.NewIRI("urn:rsp:sentinel"), rdf.NewIRI("urn:rsp:type"), rdf.NewLiteral("end"))

// Engine evaluates a continuous query over timestamped streams of quads.
type Engine struct {
	id       string
	opts     *options
	parsed   *rspql.ParsedQuery
	operator *r2r.Operator
	log      *zap.SugaredLogger

	// mu guards the fields set by Initialize
	mu      sync.RWMutex
	tasks   []*windowTask
	streams map[string]*Stream
	ctx     context.Context
	cancel  context.CancelFunc

	wg          sync.WaitGroup
	initialized atomic.Bool
	started     atomic.Bool
	closed      atomic.Bool
	closeOnce   sync.Once
	// pending counts the batches accepted by a window input and not fully processed yet
	pending atomic.Int64
	results chan Result
	errs    chan error
}

// windowTask is one declared window and its ingestion goroutine state.
type windowTask struct {
	def     rspql.WindowDefinition
	graph   rdf.Term
	sliding *sliding.Sliding
	input   chan *window.Container
	// queued holds the emissions of the batch being processed, it is only touched by the window goroutine
	queued []emission
}

type emission struct {
	instance window.Instance
	content  *window.Container
}

// WindowState is a point in time view of one window.
type WindowState struct {
	Name   string
	Stream string
	Width  int64
	Slide  int64
	// Active lists the active window instances ordered by close
	Active   []window.Instance
	Time     int64
	Anchor   int64
	Anchored bool
}

// New parses the query and returns an Engine ready to be initialized.
func New(query string, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = logging.NewLogger()
	}
	if o.evaluator == nil {
		evaluator, err := sparql.NewEvaluator()
		if err != nil {
			return nil, err
		}
		o.evaluator = evaluator
	}
	parsed, err := o.parser.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	id := uuid.NewString()
	return &Engine{
		id:       id,
		opts:     o,
		parsed:   parsed,
		operator: r2r.NewOperator(parsed.SPARQL, o.evaluator),
		log:      o.logger.With("engine", id),
		streams:  make(map[string]*Stream),
		results:  make(chan Result, o.resultBufferSize),
		errs:     make(chan error, o.errorBufferSize),
	}, nil
}

func (e *Engine) ID() string {
	return e.id
}

// GetName returns the engine id, it names the engine in the pending metric.
func (e *Engine) GetName() string {
	return e.id
}

// Pending returns the number of batches accepted by a window and not processed yet.
func (e *Engine) Pending(_ context.Context) (int64, error) {
	return e.pending.Load(), nil
}

// IsHealthy returns an error until the engine is initialized and once it is closed.
func (e *Engine) IsHealthy(_ context.Context) error {
	switch {
	case e.closed.Load():
		return ErrEngineClosed
	case !e.initialized.Load():
		return ErrNotInitialized
	default:
		return nil
	}
}

// ParsedQuery returns the window declarations and the embedded query.
func (e *Engine) ParsedQuery() *rspql.ParsedQuery {
	return e.parsed
}

// Initialize creates the windows and starts one ingestion goroutine per window. The goroutines stop
// when ctx is done or the engine is closed.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if !e.initialized.CompareAndSwap(false, true) {
		return ErrAlreadyInitialized
	}

	tasks := make([]*windowTask, 0, len(e.parsed.Windows))
	for _, def := range e.parsed.Windows {
		s, err := sliding.NewSliding(def.Name, def.Width, def.Slide,
			sliding.WithReportPolicy(e.opts.reportPolicy),
			sliding.WithTick(e.opts.tick),
			sliding.WithLogger(e.log))
		if err != nil {
			e.initialized.Store(false)
			return fmt.Errorf("failed to create window %s: %w", def.Name, err)
		}
		tasks = append(tasks, &windowTask{
			def:     def,
			graph:   rdf.NewIRI(def.Name),
			sliding: s,
			input:   make(chan *window.Container, e.opts.inputBufferSize),
		})
	}

	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(logging.WithLogger(ctx, e.log))
	e.tasks = tasks
	for _, t := range tasks {
		s, ok := e.streams[t.def.Stream]
		if !ok {
			s = &Stream{name: t.def.Stream, engine: e}
			e.streams[t.def.Stream] = s
		}
		s.tasks = append(s.tasks, t)
	}
	e.mu.Unlock()

	for _, t := range tasks {
		e.wg.Add(1)
		go e.run(t)
	}
	e.log.Infow("Initialized engine", zap.Int("windows", len(tasks)), zap.Int("streams", len(e.streams)))
	return nil
}

// StartProcessing subscribes the query to every window and returns the result channel. The channel is
// closed by Close.
func (e *Engine) StartProcessing() (<-chan Result, error) {
	if !e.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if !e.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	if e.parsed.StreamType != window.RStream {
		e.log.Warnw("Only RStream is produced", zap.Stringer("registered", e.parsed.StreamType))
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, t := range e.tasks {
		t := t
		t.sliding.Subscribe(window.RStream, func(w window.Instance, content *window.Container) {
			t.queued = append(t.queued, emission{instance: w, content: content})
		})
	}
	return e.results, nil
}

// Errors returns the channel of evaluation failures. Failures are dropped when nobody drains it.
func (e *Engine) Errors() <-chan error {
	return e.errs
}

// GetStream returns the handle of the named stream.
func (e *Engine) GetStream(name string) (*Stream, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.streams[name]
	return s, ok
}

// Streams returns the names of the streams read by the query.
func (e *Engine) Streams() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.streams))
	for name := range e.streams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseStream pushes the event time of the named stream to timestamp so that every window closing
// before it reports. It is the same as a real event arriving at timestamp.
func (e *Engine) CloseStream(ctx context.Context, name string, timestamp int64) error {
	s, ok := e.GetStream(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStreamNotFound, name)
	}
	return s.AddQuads(ctx, []rdf.Quad{sentinel}, timestamp)
}

// AddStaticData adds background quads joined to every evaluation.
func (e *Engine) AddStaticData(quads ...rdf.Quad) {
	for _, q := range quads {
		e.operator.AddStaticData(q)
	}
}

// WindowState returns the state of the named window.
func (e *Engine) WindowState(name string) (WindowState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, t := range e.tasks {
		if t.def.Name != name {
			continue
		}
		anchor, anchored := t.sliding.Anchor()
		return WindowState{
			Name:     t.def.Name,
			Stream:   t.def.Stream,
			Width:    t.def.Width,
			Slide:    t.def.Slide,
			Active:   t.sliding.ActiveWindowRanges(),
			Time:     t.sliding.Time(),
			Anchor:   anchor,
			Anchored: anchored,
		}, true
	}
	return WindowState{}, false
}

// Drain waits until every accepted batch has been processed and its results sent.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.RLock()
	engineCtx := e.ctx
	e.mu.RUnlock()
	if engineCtx == nil {
		return ErrNotInitialized
	}
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if e.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-engineCtx.Done():
			return ErrEngineClosed
		case <-ticker.C:
		}
	}
}

// Close stops the window goroutines, then closes the result and error channels. Batches still queued
// are dropped, call Drain first to flush them.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.mu.RLock()
		cancel := e.cancel
		e.mu.RUnlock()
		if cancel != nil {
			cancel()
		}
		e.wg.Wait()
		close(e.results)
		close(e.errs)
		e.log.Info("Closed engine")
	})
	return nil
}

func (e *Engine) run(t *windowTask) {
	defer e.wg.Done()
	log := e.log.With("window", t.def.Name)
	log.Debug("Starting window ingestion")
	for {
		select {
		case <-e.ctx.Done():
			log.Debug("Stopped window ingestion")
			return
		case batch := <-t.input:
			inputBufferSize.WithLabelValues(t.def.Name).Set(float64(len(t.input)))
			e.process(t, batch)
			e.pending.Dec()
		}
	}
}

// process assigns the batch to the window graph, adds it to the windower and evaluates the emissions
// it caused once the windower lock is released.
func (e *Engine) process(t *windowTask, batch *window.Container) {
	timestamp := batch.LastTimestamp()
	graphed := window.NewContainer(nil, timestamp)
	batch.Range(func(q rdf.Quad) {
		q.Graph = t.graph
		graphed.Add(q, timestamp)
	})
	t.sliding.AddBatch(graphed)

	queued := t.queued
	t.queued = nil
	for _, em := range queued {
		e.evaluate(t, em)
	}
}

func (e *Engine) evaluate(t *windowTask, em emission) {
	content := em.content
	// siblings join on the event time the emitted content was last written at
	ts := content.LastTimestamp()
	// siblings are read one at a time, no two windower locks are ever held together
	for _, sibling := range e.tasks {
		if sibling == t {
			continue
		}
		if c, ok := sibling.sliding.ContentAt(ts); ok {
			content.Merge(c, ts)
		}
	}

	evaluations.WithLabelValues(t.def.Name).Inc()
	start := time.Now()
	bindings, err := e.operator.Execute(e.ctx, content)
	evaluationTime.WithLabelValues(t.def.Name).Observe(float64(time.Since(start).Microseconds()))
	if err != nil {
		evaluationErrors.WithLabelValues(t.def.Name).Inc()
		e.log.Errorw("Failed to evaluate window", zap.String("window", t.def.Name), zap.Stringer("instance", em.instance), zap.Error(err))
		evalErr := &EvaluationError{Window: t.def.Name, From: ts, To: ts + t.def.Width, Err: err}
		select {
		case e.errs <- evalErr:
		default:
		}
		return
	}

	for _, b := range bindings {
		r := Result{
			Window:      t.def.Name,
			Bindings:    b,
			From:        ts,
			To:          ts + t.def.Width,
			WindowOpen:  em.instance.Open,
			WindowClose: em.instance.Close,
		}
		select {
		case e.results <- r:
			resultsProduced.WithLabelValues(t.def.Name).Inc()
		case <-e.ctx.Done():
			return
		}
	}
}
