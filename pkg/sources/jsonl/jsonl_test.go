package jsonl

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/shared/logging"
	"github.com/numaproj/numaflow-rsp/pkg/sources"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const query = `
PREFIX ex: <http://example.org/>
SELECT ?s
FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE 10 TUMBLING]
WHERE { WINDOW ex:w { ?s ?p ?o } }`

const input = `{"stream":"http://example.org/s","timestamp":1,"quads":["<http://example.org/a> <http://example.org/p> \"1\" ."]}

{"stream":"http://example.org/s","timestamp":4,"quads":["<http://example.org/b> <http://example.org/p> \"2\" ."]}
{"stream":"http://example.org/other","timestamp":5,"quads":[]}
{"stream":"http://example.org/s","timestamp":12,"quads":[]}
`

func newEngine(t *testing.T) (*engine.Engine, <-chan engine.Result) {
	t.Helper()
	e, err := engine.New(query, engine.WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	results, err := e.StartProcessing()
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, results
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestJSONL_SkipInvalid(t *testing.T) {
	e, results := newEngine(t)
	r := &closeRecorder{Reader: strings.NewReader(input)}
	src, err := New("file", r, e, WithLogger(logging.NewNopLogger()), WithSkipInvalid(true))
	require.NoError(t, err)
	assert.Equal(t, "file", src.GetName())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, src.Run(ctx))
	assert.Equal(t, map[string]int64{"http://example.org/s": 12}, src.Watermarks())
	require.NoError(t, e.Drain(ctx))

	var subjects []string
	for i := 0; i < 2; i++ {
		select {
		case res := <-results:
			assert.Equal(t, int64(4), res.From)
			assert.Equal(t, int64(14), res.To)
			assert.Equal(t, int64(0), res.WindowOpen)
			assert.Equal(t, int64(10), res.WindowClose)
			subjects = append(subjects, res.Bindings["s"].Value)
		case <-ctx.Done():
			t.Fatal("missing result")
		}
	}
	assert.ElementsMatch(t, []string{"http://example.org/a", "http://example.org/b"}, subjects)

	require.NoError(t, src.Close())
	assert.True(t, r.closed)
}

func TestJSONL_StopsOnInvalid(t *testing.T) {
	e, _ := newEngine(t)
	src, err := New("file", strings.NewReader(input), e, WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	err = src.Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrStreamNotFound)
	assert.Contains(t, err.Error(), "line 4")
	assert.NoError(t, src.Close())

	src, err = New("file", strings.NewReader("{broken\n"), e, WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	assert.ErrorIs(t, src.Run(context.Background()), sources.ErrInvalidEvent)
}

func TestJSONL_Options(t *testing.T) {
	_, err := New("file", strings.NewReader(""), nil, WithMaxLineSize(0))
	assert.Error(t, err)

	src, err := New("file", strings.NewReader(strings.Repeat("x", 64)), nil, WithMaxLineSize(16), WithLogger(logging.NewNopLogger()))
	require.NoError(t, err)
	assert.Error(t, src.Run(context.Background()))
}
