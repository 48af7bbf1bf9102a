package rspql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj/numaflow-rsp/pkg/window"
)

const singleWindow = `
PREFIX ex: <http://example.org/>
REGISTER RStream <output> AS
SELECT ?s ?p ?o
FROM NAMED WINDOW ex:w1 ON STREAM ex:stream1 [RANGE 10000 STEP 2000]
WHERE {
    WINDOW ex:w1 { ?s ?p ?o }
}
`

func TestParse_SingleWindow(t *testing.T) {
	parsed, err := Parse(singleWindow)
	require.NoError(t, err)
	assert.Equal(t, window.RStream, parsed.StreamType)
	assert.Equal(t, "output", parsed.Output)
	assert.Equal(t, map[string]string{"ex": "http://example.org/"}, parsed.Prefixes)
	require.Len(t, parsed.Windows, 1)
	assert.Equal(t, WindowDefinition{
		Name:   "http://example.org/w1",
		Stream: "http://example.org/stream1",
		Width:  10000,
		Slide:  2000,
	}, parsed.Windows[0])
	assert.False(t, parsed.Windows[0].Tumbling())

	assert.NotContains(t, parsed.SPARQL, "REGISTER")
	assert.NotContains(t, parsed.SPARQL, "FROM NAMED")
	assert.Contains(t, parsed.SPARQL, "PREFIX ex: <http://example.org/>")
	assert.Contains(t, parsed.SPARQL, "GRAPH <http://example.org/w1> { ?s ?p ?o }")
}

func TestParse_MultipleWindows(t *testing.T) {
	query := `
REGISTER IStream <http://example.org/out> AS
PREFIX ex: <http://example.org/>
PREFIX : <http://default.org/>
SELECT ?s
FROM NAMED WINDOW ex:w1 ON STREAM ex:stream1 [RANGE 5000 STEP 1000]
FROM NAMED WINDOW :w2 ON STREAM <http://other.org/stream2> [range 3000 tumbling]
WHERE {
    WINDOW ex:w1 { ?s ex:temp ?t }
    WINDOW :w2 { ?s ex:hum ?h }
}`
	parsed, err := Parse(query)
	require.NoError(t, err)
	assert.Equal(t, window.IStream, parsed.StreamType)
	assert.Equal(t, "http://example.org/out", parsed.Output)
	require.Len(t, parsed.Windows, 2)

	w2, ok := parsed.Window("http://default.org/w2")
	require.True(t, ok)
	assert.Equal(t, "http://other.org/stream2", w2.Stream)
	assert.Equal(t, int64(3000), w2.Width)
	assert.Equal(t, int64(3000), w2.Slide)
	assert.True(t, w2.Tumbling())

	assert.Contains(t, parsed.SPARQL, "GRAPH <http://example.org/w1> {")
	assert.Contains(t, parsed.SPARQL, "GRAPH <http://default.org/w2> {")
	assert.True(t, len(parsed.SPARQL) > 0 && parsed.SPARQL[0] == 'P')
}

func TestParse_SharedStream(t *testing.T) {
	query := `
PREFIX ex: <http://example.org/>
SELECT *
FROM NAMED WINDOW ex:w1 ON STREAM ex:s [RANGE 10 STEP 5]
FROM NAMED WINDOW ex:w2 ON STREAM ex:s [RANGE 20 STEP 5]
WHERE { WINDOW ex:w1 { ?a ?b ?c } }`
	parsed, err := Parse(query)
	require.NoError(t, err)
	assert.Equal(t, "", parsed.Output)
	assert.Equal(t, window.RStream, parsed.StreamType)
	require.Len(t, parsed.Windows, 2)
	assert.Equal(t, parsed.Windows[0].Stream, parsed.Windows[1].Stream)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		query string
		err   error
	}{
		{
			name:  "no window",
			query: `SELECT * WHERE { ?s ?p ?o }`,
			err:   ErrNoWindow,
		},
		{
			name: "duplicate window",
			query: `PREFIX ex: <http://example.org/>
SELECT * FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE 10 STEP 5]
FROM NAMED WINDOW ex:w ON STREAM ex:t [RANGE 10 STEP 5]
WHERE { WINDOW ex:w { ?s ?p ?o } }`,
			err: ErrDuplicateWindow,
		},
		{
			name: "zero step",
			query: `PREFIX ex: <http://example.org/>
SELECT * FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE 10 STEP 0]
WHERE { WINDOW ex:w { ?s ?p ?o } }`,
			err: ErrInvalidRange,
		},
		{
			name: "negative range",
			query: `PREFIX ex: <http://example.org/>
SELECT * FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE -10 STEP 5]
WHERE { WINDOW ex:w { ?s ?p ?o } }`,
			err: ErrInvalidRange,
		},
		{
			name: "undeclared window",
			query: `PREFIX ex: <http://example.org/>
SELECT * FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE 10 STEP 5]
WHERE { WINDOW ex:other { ?s ?p ?o } }`,
			err: ErrUndeclaredWindow,
		},
		{
			name: "unknown prefix",
			query: `SELECT * FROM NAMED WINDOW foo:w ON STREAM foo:s [RANGE 10 STEP 5]
WHERE { ?s ?p ?o }`,
			err: ErrUnknownPrefix,
		},
		{
			name: "malformed range",
			query: `PREFIX ex: <http://example.org/>
SELECT * FROM NAMED WINDOW ex:w ON STREAM ex:s [RANGE ten]
WHERE { ?s ?p ?o }`,
			err: ErrSyntax,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Parse(tt.query)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}
