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

package window

import (
	"sort"

	"github.com/spaolacci/murmur3"

	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

// Container is a deduplicated set of quads, tagged with the timestamp of its last mutation.
// The timestamp is metadata only; it never decides when a window closes.
// Container is not safe for concurrent mutation, the owner serializes access.
type Container struct {
	elements      map[rdf.Quad]struct{}
	lastTimestamp int64
}

// NewContainer returns a container holding the given quads, duplicates collapse.
func NewContainer(quads []rdf.Quad, timestamp int64) *Container {
	c := &Container{
		elements:      make(map[rdf.Quad]struct{}, len(quads)),
		lastTimestamp: timestamp,
	}
	for _, q := range quads {
		c.elements[q] = struct{}{}
	}
	return c
}

// Add inserts the quad and records the timestamp.
func (c *Container) Add(q rdf.Quad, timestamp int64) {
	c.elements[q] = struct{}{}
	c.lastTimestamp = timestamp
}

// Remove deletes the quad and records the timestamp.
func (c *Container) Remove(q rdf.Quad, timestamp int64) {
	delete(c.elements, q)
	c.lastTimestamp = timestamp
}

// Clear drops every quad and records the timestamp.
func (c *Container) Clear(timestamp int64) {
	c.elements = make(map[rdf.Quad]struct{})
	c.lastTimestamp = timestamp
}

// Contains reports whether the quad is in the container.
func (c *Container) Contains(q rdf.Quad) bool {
	_, ok := c.elements[q]
	return ok
}

func (c *Container) Len() int {
	return len(c.elements)
}

func (c *Container) IsEmpty() bool {
	return len(c.elements) == 0
}

// LastTimestamp returns the timestamp of the last mutation.
func (c *Container) LastTimestamp() int64 {
	return c.lastTimestamp
}

// Merge adds every quad of other and records the timestamp.
func (c *Container) Merge(other *Container, timestamp int64) {
	for q := range other.elements {
		c.elements[q] = struct{}{}
	}
	c.lastTimestamp = timestamp
}

// Clone returns a deep copy.
func (c *Container) Clone() *Container {
	clone := &Container{
		elements:      make(map[rdf.Quad]struct{}, len(c.elements)),
		lastTimestamp: c.lastTimestamp,
	}
	for q := range c.elements {
		clone.elements[q] = struct{}{}
	}
	return clone
}

// Range calls fn for every quad in unspecified order.
func (c *Container) Range(fn func(rdf.Quad)) {
	for q := range c.elements {
		fn(q)
	}
}

// Quads returns the quads in N-Quads lexical order.
func (c *Container) Quads() []rdf.Quad {
	quads := make([]rdf.Quad, 0, len(c.elements))
	for q := range c.elements {
		quads = append(quads, q)
	}
	sort.Slice(quads, func(i, j int) bool {
		return quads[i].String() < quads[j].String()
	})
	return quads
}

// Fingerprint returns a hash of the content which does not depend on insertion order.
// The empty container has fingerprint 0.
func (c *Container) Fingerprint() uint64 {
	var sum uint64
	for q := range c.elements {
		sum += murmur3.Sum64([]byte(q.String()))
	}
	return sum
}
