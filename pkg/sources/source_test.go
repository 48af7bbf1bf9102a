package sources

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const query = `
PREFIX ex: <http://example.org/>
SELECT ?s
FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE 10 TUMBLING]
WHERE { WINDOW ex:w { ?s ?p ?o } }`

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(query, engine.WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"stream":"http://example.org/s","timestamp":42,"quads":["<http://a> <http://b> \"c\" ."]}`))
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/s", ev.Stream)
	assert.Equal(t, int64(42), ev.Timestamp)
	quads, err := ev.ParseQuads()
	require.NoError(t, err)
	require.Len(t, quads, 1)
	assert.Equal(t, "http://a", quads[0].Subject.Value)

	_, err = DecodeEvent([]byte(`{"timestamp":1}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
	_, err = DecodeEvent([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = Event{Stream: "s", Quads: []string{"# comment", "", "<http://a> broken"}}.ParseQuads()
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestDispatcher(t *testing.T) {
	e := newEngine(t)
	d := NewDispatcher("test", e, logging.NewNopLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, d.DispatchBytes(ctx, []byte(`{"stream":"http://example.org/s","timestamp":5,"quads":["<http://a> <http://b> <http://c> ."]}`)))
	require.NoError(t, d.Dispatch(ctx, Event{Stream: "http://example.org/s", Timestamp: 3}))
	assert.Equal(t, map[string]int64{"http://example.org/s": 5}, d.Watermarks())

	err := d.Dispatch(ctx, Event{Stream: "http://example.org/unknown", Timestamp: 1})
	assert.ErrorIs(t, err, engine.ErrStreamNotFound)
	assert.True(t, Recoverable(err))

	err = d.DispatchBytes(ctx, []byte(`{}`))
	assert.True(t, Recoverable(err))

	require.NoError(t, e.Drain(ctx))
	state, ok := e.WindowState("http://example.org/w")
	require.True(t, ok)
	assert.Equal(t, int64(5), state.Anchor)

	require.NoError(t, e.Close())
	err = d.Dispatch(ctx, Event{Stream: "http://example.org/s", Timestamp: 20})
	assert.ErrorIs(t, err, engine.ErrEngineClosed)
	assert.False(t, Recoverable(err))
}
