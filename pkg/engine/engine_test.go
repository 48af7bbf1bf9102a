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

package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/numaproj/numaflow-rsp/pkg/r2r"
	"github.com/numaproj/numaflow-rsp/pkg/rdf"
	"github.com/numaproj/numaflow-rsp/pkg/rspql"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/window"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	ex = "http://example.org/"

	singleWindowQuery = `
PREFIX ex: <http://example.org/>
REGISTER RStream <out> AS
SELECT ?s
FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE 5000 STEP 1000]
WHERE { WINDOW ex:w { ?s ex:p ?o } }`

	twoStreamQuery = `
PREFIX ex: <http://example.org/>
SELECT ?a ?b
FROM NAMED WINDOW ex:w0 ON STREAM ex:s0 [RANGE 5000 STEP 1000]
FROM NAMED WINDOW ex:w1 ON STREAM ex:s1 [RANGE 5000 STEP 1000]
WHERE {
    WINDOW ex:w0 { ?a ex:p ?x }
    WINDOW ex:w1 { ?b ex:q ?y }
}`
)

func event(subject string, predicate string) rdf.Quad {
	return rdf.NewTriple(rdf.NewIRI(ex+subject), rdf.NewIRI(ex+predicate), rdf.NewLiteral(subject))
}

func newTestEngine(t *testing.T, query string, opts ...Option) (*Engine, <-chan Result) {
	t.Helper()
	opts = append([]Option{WithLogger(logging.NewNopLogger())}, opts...)
	e, err := New(query, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	results, err := e.StartProcessing()
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, results
}

// addAndDrain adds one batch and returns every result it produced.
func addAndDrain(t *testing.T, e *Engine, results <-chan Result, stream string, timestamp int64, quads ...rdf.Quad) []Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, ok := e.GetStream(ex + stream)
	require.True(t, ok)
	require.NoError(t, s.AddQuads(ctx, quads, timestamp))
	require.NoError(t, e.Drain(ctx))
	return collect(results)
}

func collect(results <-chan Result) []Result {
	var out []Result
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return out
			}
			out = append(out, r)
		default:
			return out
		}
	}
}

func subjects(results []Result, variable string) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Bindings[variable].Value)
	}
	sort.Strings(out)
	return out
}

func TestNew(t *testing.T) {
	e, err := New(singleWindowQuery, WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID())
	require.Len(t, e.ParsedQuery().Windows, 1)
	assert.Equal(t, ex+"w", e.ParsedQuery().Windows[0].Name)
	assert.NoError(t, e.Close())

	_, err = New("SELECT * WHERE { ?s ?p ?o }")
	assert.ErrorIs(t, err, rspql.ErrNoWindow)

	_, err = New(singleWindowQuery, WithInputBufferSize(-1))
	assert.Error(t, err)
}

func TestEngine_Lifecycle(t *testing.T) {
	e, err := New(singleWindowQuery, WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)

	_, err = e.StartProcessing()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, e.Drain(context.Background()), ErrNotInitialized)

	require.NoError(t, e.Initialize(context.Background()))
	assert.ErrorIs(t, e.Initialize(context.Background()), ErrAlreadyInitialized)

	results, err := e.StartProcessing()
	require.NoError(t, err)
	_, err = e.StartProcessing()
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	s, ok := e.GetStream(ex + "s")
	require.True(t, ok)
	assert.Equal(t, ex+"s", s.Name())

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	_, open := <-results
	assert.False(t, open)
	_, open = <-e.Errors()
	assert.False(t, open)

	assert.ErrorIs(t, s.AddQuads(context.Background(), []rdf.Quad{event("a", "p")}, 0), ErrEngineClosed)
	assert.ErrorIs(t, e.Initialize(context.Background()), ErrEngineClosed)
}

func TestEngine_UnknownNames(t *testing.T) {
	e, _ := newTestEngine(t, singleWindowQuery)

	_, ok := e.GetStream(ex + "nope")
	assert.False(t, ok)
	_, ok = e.WindowState(ex + "nope")
	assert.False(t, ok)
	assert.ErrorIs(t, e.CloseStream(context.Background(), ex+"nope", 10), ErrStreamNotFound)
	assert.Equal(t, []string{ex + "s"}, e.Streams())
}

// TestEngine_SlidingReports follows the report step: a window reports with the first event past its close.
// A five second window stepped by one second sees one fact per event at 0, 500, 1000, 1500, 2000 and 4000.
// The event at 1500 reports a single window, the event at 4000 reports two windows in close order.
// Results are stamped with the last event time inside the reported window, To is that time plus the width.
func TestEngine_SlidingReports(t *testing.T) {
	e, results := newTestEngine(t, singleWindowQuery)

	// [-5000,0) reports at 500 but it is empty
	for _, ts := range []int64{0, 500, 1000} {
		assert.Empty(t, addAndDrain(t, e, results, "s", ts, event(fmt.Sprintf("e%d", ts), "p")))
	}

	// 1500 closes [-4000,1000), last written at 500
	got := addAndDrain(t, e, results, "s", 1500, event("e1500", "p"))
	assert.Equal(t, []string{ex + "e0", ex + "e500"}, subjects(got, "s"))
	for _, r := range got {
		assert.Equal(t, ex+"w", r.Window)
		assert.Equal(t, int64(500), r.From)
		assert.Equal(t, int64(5500), r.To)
		assert.Equal(t, int64(-4000), r.WindowOpen)
		assert.Equal(t, int64(1000), r.WindowClose)
	}

	// [-3000,2000) is not closed by 2000 itself
	assert.Empty(t, addAndDrain(t, e, results, "s", 2000, event("e2000", "p")))

	// one event closes two windows, both report in close order
	got = addAndDrain(t, e, results, "s", 4000, event("e4000", "p"))
	require.Len(t, got, 9)
	var closes []int64
	byWindow := make(map[window.Instance][]Result)
	for _, r := range got {
		w := window.NewInstance(r.WindowOpen, r.WindowClose)
		if len(byWindow[w]) == 0 {
			closes = append(closes, w.Close)
		}
		byWindow[w] = append(byWindow[w], r)
	}
	assert.Equal(t, []int64{2000, 3000}, closes)
	first := byWindow[window.NewInstance(-3000, 2000)]
	assert.Equal(t, []string{ex + "e0", ex + "e1000", ex + "e1500", ex + "e500"}, subjects(first, "s"))
	for _, r := range first {
		assert.Equal(t, int64(1500), r.From)
		assert.Equal(t, int64(6500), r.To)
	}
	second := byWindow[window.NewInstance(-2000, 3000)]
	assert.Len(t, second, 5)
	for _, r := range second {
		assert.Equal(t, int64(2000), r.From)
		assert.Equal(t, int64(7000), r.To)
	}

	state, ok := e.WindowState(ex + "w")
	require.True(t, ok)
	assert.Equal(t, int64(4000), state.Time)
	assert.Equal(t, int64(0), state.Anchor)
	assert.True(t, state.Anchored)
	assert.Equal(t, window.NewInstance(-1000, 4000), state.Active[0])
	for _, w := range state.Active {
		assert.GreaterOrEqual(t, w.Close, int64(4000))
	}
}

// TestEngine_MergesSiblingWindows joins two windows on two streams. A reporting window of ex:w1 is last
// written at 2500, the ex:w0 window holding 2500 with the smallest close is [-2000,3000), so every one of
// the three reports joins b2500 with a1000 and a2000 only.
func TestEngine_MergesSiblingWindows(t *testing.T) {
	e, results := newTestEngine(t, twoStreamQuery)

	for _, ts := range []int64{1000, 2000, 3000} {
		addAndDrain(t, e, results, "s0", ts, event(fmt.Sprintf("a%d", ts), "p"))
	}
	assert.Empty(t, addAndDrain(t, e, results, "s1", 2500, event("b2500", "q")))

	got := addAndDrain(t, e, results, "s1", 6000, event("b6000", "q"))
	require.Len(t, got, 6)
	byWindow := make(map[window.Instance][]Result)
	for _, r := range got {
		require.Equal(t, ex+"w1", r.Window)
		assert.Equal(t, int64(2500), r.From)
		assert.Equal(t, int64(7500), r.To)
		assert.Equal(t, ex+"b2500", r.Bindings["b"].Value)
		w := window.NewInstance(r.WindowOpen, r.WindowClose)
		byWindow[w] = append(byWindow[w], r)
	}
	require.Len(t, byWindow, 3)
	for _, w := range []window.Instance{
		window.NewInstance(-2000, 3000),
		window.NewInstance(-1000, 4000),
		window.NewInstance(0, 5000),
	} {
		assert.Equal(t, []string{ex + "a1000", ex + "a2000"}, subjects(byWindow[w], "a"), w.String())
	}
}

func TestEngine_CloseStreamIsARealEvent(t *testing.T) {
	run := func(flush func(e *Engine, results <-chan Result) []Result) []Result {
		e, results := newTestEngine(t, singleWindowQuery)
		var all []Result
		for _, ts := range []int64{1000, 2000, 2500} {
			all = append(all, addAndDrain(t, e, results, "s", ts, event(fmt.Sprintf("e%d", ts), "p"))...)
		}
		return append(all, flush(e, results)...)
	}

	flushed := run(func(e *Engine, results <-chan Result) []Result {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, e.CloseStream(ctx, ex+"s", 9000))
		require.NoError(t, e.Drain(ctx))
		return collect(results)
	})
	actual := run(func(e *Engine, results <-chan Result) []Result {
		return addAndDrain(t, e, results, "s", 9000, event("e9000", "p"))
	})

	assert.NotEmpty(t, flushed)
	assert.ElementsMatch(t, actual, flushed)
	for _, r := range flushed {
		assert.Less(t, r.WindowClose, int64(9000))
	}
}

func TestEngine_SharedStreamFansOut(t *testing.T) {
	query := `
PREFIX ex: <http://example.org/>
SELECT ?s
FROM NAMED WINDOW ex:short ON STREAM ex:s [RANGE 10 STEP 5]
FROM NAMED WINDOW ex:long ON STREAM ex:s [RANGE 20 STEP 10]
WHERE { ?s ex:p ?o }`
	e, results := newTestEngine(t, query)
	assert.Equal(t, []string{ex + "s"}, e.Streams())

	addAndDrain(t, e, results, "s", 3, event("x", "p"))
	for _, name := range []string{ex + "short", ex + "long"} {
		state, ok := e.WindowState(name)
		require.True(t, ok)
		assert.True(t, state.Anchored, name)
		assert.Equal(t, int64(3), state.Anchor, name)
		assert.NotEmpty(t, state.Active, name)
	}
}

func TestEngine_StaticData(t *testing.T) {
	query := `
PREFIX ex: <http://example.org/>
SELECT ?s ?room
FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE 10 TUMBLING]
WHERE {
    WINDOW ex:w { ?s ex:p ?o }
    ?s ex:locatedIn ?room .
}`
	e, results := newTestEngine(t, query)
	e.AddStaticData(rdf.NewTriple(rdf.NewIRI(ex+"a"), rdf.NewIRI(ex+"locatedIn"), rdf.NewIRI(ex+"kitchen")))

	addAndDrain(t, e, results, "s", 1, event("a", "p"), event("b", "p"))
	got := addAndDrain(t, e, results, "s", 11)
	require.Len(t, got, 1)
	assert.Equal(t, ex+"a", got[0].Bindings["s"].Value)
	assert.Equal(t, ex+"kitchen", got[0].Bindings["room"].Value)
	// stamped with the batch at 1, not with the window bounds
	assert.Equal(t, int64(1), got[0].From)
	assert.Equal(t, int64(11), got[0].To)
	assert.Equal(t, int64(0), got[0].WindowOpen)
	assert.Equal(t, int64(10), got[0].WindowClose)
}

type failingEvaluator struct {
	err error
}

func (f failingEvaluator) Evaluate(context.Context, string, []rdf.Quad) ([]r2r.Binding, error) {
	return nil, f.err
}

func TestEngine_EvaluationErrors(t *testing.T) {
	errBoom := errors.New("boom")
	e, results := newTestEngine(t, singleWindowQuery, WithEvaluator(failingEvaluator{err: errBoom}))

	addAndDrain(t, e, results, "s", 0, event("a", "p"))
	got := addAndDrain(t, e, results, "s", 6000, event("b", "p"))
	assert.Empty(t, got)

	select {
	case err := <-e.Errors():
		assert.ErrorIs(t, err, errBoom)
		var evalErr *EvaluationError
		require.ErrorAs(t, err, &evalErr)
		assert.Equal(t, ex+"w", evalErr.Window)
		// every window reported at 6000 was last written at 0
		assert.Equal(t, int64(0), evalErr.From)
		assert.Equal(t, int64(5000), evalErr.To)
	case <-time.After(time.Second):
		t.Fatal("expected an evaluation error")
	}

	// the window goroutine keeps running after a failure
	assert.Empty(t, addAndDrain(t, e, results, "s", 7000, event("c", "p")))
}

func TestStream_AddHonorsContext(t *testing.T) {
	e, _ := newTestEngine(t, singleWindowQuery, WithInputBufferSize(0), WithResultBufferSize(0))
	s, ok := e.GetStream(ex + "s")
	require.True(t, ok)

	// nobody reads the results, the window goroutine blocks on the first one
	require.NoError(t, s.AddQuads(context.Background(), []rdf.Quad{event("a", "p")}, 0))
	require.NoError(t, s.AddQuads(context.Background(), []rdf.Quad{event("b", "p")}, 6000))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.AddQuads(ctx, []rdf.Quad{event("c", "p")}, 7000), context.DeadlineExceeded)
	assert.ErrorIs(t, e.Drain(ctx), context.DeadlineExceeded)
}

const sharedStreamQuery = `
PREFIX ex: <http://example.org/>
SELECT ?s
FROM NAMED WINDOW ex:w0 ON STREAM ex:s [RANGE 100000 TUMBLING]
FROM NAMED WINDOW ex:w1 ON STREAM ex:s [RANGE 1000 TUMBLING]
WHERE { WINDOW ex:w1 { ?s ex:p ?o } }`

func TestStream_AddCancelledDeliversNothing(t *testing.T) {
	e, _ := newTestEngine(t, sharedStreamQuery, WithInputBufferSize(0), WithResultBufferSize(0))
	s, ok := e.GetStream(ex + "s")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.AddQuads(ctx, []rdf.Quad{event("a", "p")}, 0), context.Canceled)

	n, err := e.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	for _, task := range e.tasks {
		assert.Zero(t, task.sliding.ActiveWindowCount(), task.def.Name)
	}
}

func TestStream_AddDeliversToEveryWindowOnceAccepted(t *testing.T) {
	e, results := newTestEngine(t, sharedStreamQuery, WithInputBufferSize(0), WithResultBufferSize(0))
	s, ok := e.GetStream(ex + "s")
	require.True(t, ok)
	require.Len(t, e.tasks, 2)

	require.NoError(t, s.AddQuads(context.Background(), []rdf.Quad{event("a", "p")}, 0))
	// w1 reports [0,1000) and blocks on the unread result, its input stays full
	require.NoError(t, s.AddQuads(context.Background(), []rdf.Quad{event("b", "p")}, 1500))

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		done <- s.AddQuads(ctx, []rdf.Quad{event("c", "p")}, 1600)
	}()

	// w0 took the batch, the expired context does not abandon w1
	select {
	case err := <-done:
		t.Fatalf("add returned before every window accepted the batch: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case r := <-results:
		assert.Equal(t, ex+"w1", r.Window)
		assert.Equal(t, int64(0), r.WindowOpen)
		assert.Equal(t, ex+"a", r.Bindings["s"].Value)
	case <-time.After(5 * time.Second):
		t.Fatal("missing result")
	}
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("add did not return")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Drain(ctx))

	wide, ok := e.tasks[0].sliding.ContentAt(1600)
	require.True(t, ok)
	assert.Equal(t, 3, wide.Len())
	assert.Equal(t, int64(1600), wide.LastTimestamp())
	narrow, ok := e.tasks[1].sliding.ContentAt(1600)
	require.True(t, ok)
	assert.Equal(t, 2, narrow.Len())
	assert.Equal(t, int64(1600), narrow.LastTimestamp())
}

func TestEngine_Health(t *testing.T) {
	e, err := New(singleWindowQuery, WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	assert.Equal(t, e.ID(), e.GetName())
	assert.ErrorIs(t, e.IsHealthy(context.Background()), ErrNotInitialized)

	require.NoError(t, e.Initialize(context.Background()))
	assert.NoError(t, e.IsHealthy(context.Background()))
	n, err := e.Pending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.IsHealthy(context.Background()), ErrEngineClosed)
}
