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

package rdf

import "strings"

// Quad is a single fact: subject, predicate, object and the graph it belongs to.
type Quad struct {
	Subject   Term
	Predicate Term
	Object    Term
	Graph     Term
}

// NewQuad returns a quad in the given graph.
func NewQuad(s, p, o, g Term) Quad {
	return Quad{Subject: s, Predicate: p, Object: o, Graph: g}
}

// NewTriple returns a quad in the default graph.
func NewTriple(s, p, o Term) Quad {
	return Quad{Subject: s, Predicate: p, Object: o}
}

// String returns the quad as one N-Quads statement, including the terminating dot.
func (q Quad) String() string {
	var b strings.Builder
	b.WriteString(q.Subject.String())
	b.WriteByte(' ')
	b.WriteString(q.Predicate.String())
	b.WriteByte(' ')
	b.WriteString(q.Object.String())
	if !q.Graph.IsDefaultGraph() {
		b.WriteByte(' ')
		b.WriteString(q.Graph.String())
	}
	b.WriteString(" .")
	return b.String()
}
