package writer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numaflow-rsp/pkg/engine"
	"github.com/numaproj/numaflow-rsp/pkg/r2r"
	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

type closingBuffer struct {
	bytes.Buffer
	closed bool
}

func (c *closingBuffer) Close() error {
	c.closed = true
	return nil
}

func TestToWriter(t *testing.T) {
	out := &closingBuffer{}
	s := NewToWriter("stdout", out)
	assert.Equal(t, "stdout", s.GetName())

	err := s.Write(context.Background(), []engine.Result{
		{Window: "http://example.org/w", Bindings: r2r.Binding{"s": rdf.NewIRI("http://example.org/a")}, From: 2500, To: 7500, WindowOpen: 0, WindowClose: 5000},
		{Window: "http://example.org/w", Bindings: r2r.Binding{}, From: 1000, To: 6000},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "http://example.org/w", first["window"])
	assert.Equal(t, float64(2500), first["from"])
	assert.Equal(t, float64(7500), first["to"])
	assert.Equal(t, float64(0), first["windowOpen"])
	assert.Equal(t, float64(5000), first["windowClose"])
	assert.Equal(t, map[string]any{"s": "<http://example.org/a>"}, first["bindings"])

	require.NoError(t, s.Close())
	assert.True(t, out.closed)
}
