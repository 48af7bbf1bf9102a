package window

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

func testQuad(s string, o string) rdf.Quad {
	return rdf.NewQuad(
		rdf.NewIRI("http://example.org/"+s),
		rdf.NewIRI("http://example.org/p"),
		rdf.NewLiteral(o),
		rdf.NewIRI("http://example.org/g"),
	)
}

func TestContainer(t *testing.T) {
	q1 := testQuad("s1", "o1")
	q2 := testQuad("s2", "o2")

	c := NewContainer(nil, 0)
	assert.True(t, c.IsEmpty())

	c.Add(q1, 1)
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Contains(q1))
	assert.Equal(t, int64(1), c.LastTimestamp())

	c.Add(q2, 2)
	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Contains(q2))

	// set semantics
	c.Add(q2, 3)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(3), c.LastTimestamp())

	c.Remove(q1, 4)
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.Contains(q1))
	assert.Equal(t, int64(4), c.LastTimestamp())

	c.Clear(5)
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.IsEmpty())
	assert.Equal(t, int64(5), c.LastTimestamp())
}

func TestNewContainer_Deduplicates(t *testing.T) {
	q := testQuad("s", "o")
	c := NewContainer([]rdf.Quad{q, q, testQuad("s", "x")}, 42)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(42), c.LastTimestamp())
}

func TestContainer_CloneAndMerge(t *testing.T) {
	a := NewContainer([]rdf.Quad{testQuad("a", "1")}, 10)
	b := NewContainer([]rdf.Quad{testQuad("b", "1"), testQuad("a", "1")}, 20)

	clone := a.Clone()
	clone.Add(testQuad("c", "1"), 11)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 2, clone.Len())

	a.Merge(b, 30)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, int64(30), a.LastTimestamp())
	assert.Equal(t, 2, b.Len())
}

func TestContainer_Quads(t *testing.T) {
	c := NewContainer([]rdf.Quad{testQuad("b", "1"), testQuad("a", "1")}, 0)
	quads := c.Quads()
	assert.Len(t, quads, 2)
	assert.Equal(t, testQuad("a", "1"), quads[0])
}

func TestContainer_Range(t *testing.T) {
	c := NewContainer([]rdf.Quad{testQuad("b", "2"), testQuad("a", "1"), testQuad("c", "3")}, 5)
	var seen []rdf.Quad
	c.Range(func(q rdf.Quad) {
		seen = append(seen, q)
	})
	assert.ElementsMatch(t, c.Quads(), seen)

	empty := NewContainer(nil, 0)
	calls := 0
	empty.Range(func(rdf.Quad) { calls++ })
	assert.Zero(t, calls)
}

func TestContainer_Fingerprint(t *testing.T) {
	assert.Equal(t, uint64(0), NewContainer(nil, 0).Fingerprint())

	a := NewContainer([]rdf.Quad{testQuad("a", "1"), testQuad("b", "2")}, 1)
	b := NewContainer([]rdf.Quad{testQuad("b", "2"), testQuad("a", "1")}, 2)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Add(testQuad("c", "3"), 3)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestInstance(t *testing.T) {
	w := NewInstance(-5000, 0)
	assert.True(t, w.Contains(-5000))
	assert.True(t, w.Contains(-1))
	assert.False(t, w.Contains(0))
	assert.Equal(t, int64(5000), w.Width())
	assert.Equal(t, "[-5000,0)", w.String())

	seen := map[Instance]bool{NewInstance(1, 2): true}
	assert.True(t, seen[NewInstance(1, 2)])
}

func TestPolicyStrings(t *testing.T) {
	for _, r := range []ReportPolicy{OnWindowClose, NonEmptyContent, OnContentChange, Periodic} {
		parsed, err := ParseReportPolicy(r.String())
		assert.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := ParseReportPolicy("Never")
	assert.Error(t, err)

	for _, tick := range []Tick{TimeDriven, TupleDriven, BatchDriven} {
		parsed, err := ParseTick(tick.String())
		assert.NoError(t, err)
		assert.Equal(t, tick, parsed)
	}
	_, err = ParseTick("Sometimes")
	assert.Error(t, err)

	assert.Equal(t, "RStream", RStream.String())
	assert.Equal(t, "Unknown", StreamType(9).String())
}
