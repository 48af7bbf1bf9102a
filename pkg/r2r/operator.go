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

// Package r2r evaluates the relational part of a continuous query over the content of a window.
package r2r

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/numaproj/numaflow-rsp/pkg/rdf"
	"github.com/numaproj/numaflow-rsp/pkg/window"
)

// Binding maps variable names, without the leading '?', to terms.
type Binding map[string]rdf.Term

// String renders the binding with variables in lexical order.
func (b Binding) String() string {
	names := make([]string, 0, len(b))
	for name := range b {
		names = append(names, name)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString("{")
	for i, name := range names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
		sb.WriteString(name)
		sb.WriteString(" = ")
		sb.WriteString(b[name].String())
	}
	sb.WriteString("}")
	return sb.String()
}

// Evaluator evaluates a query over a set of quads.
type Evaluator interface {
	Evaluate(ctx context.Context, query string, quads []rdf.Quad) ([]Binding, error)
}

// Operator binds a query to background data which joins every window evaluation.
// Operator is safe for concurrent use.
type Operator struct {
	query     string
	evaluator Evaluator
	mu        sync.RWMutex
	static    *window.Container
}

// NewOperator returns an Operator evaluating query with evaluator.
func NewOperator(query string, evaluator Evaluator) *Operator {
	return &Operator{
		query:     query,
		evaluator: evaluator,
		static:    window.NewContainer(nil, 0),
	}
}

func (o *Operator) Query() string {
	return o.query
}

// AddStaticData adds a background quad.
func (o *Operator) AddStaticData(q rdf.Quad) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.static.Add(q, 0)
}

// StaticDataSize returns the number of distinct background quads.
func (o *Operator) StaticDataSize() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.static.Len()
}

// Execute evaluates the query over the union of the container and the background data.
func (o *Operator) Execute(ctx context.Context, c *window.Container) ([]Binding, error) {
	union := c.Clone()
	o.mu.RLock()
	union.Merge(o.static, c.LastTimestamp())
	o.mu.RUnlock()
	return o.evaluator.Evaluate(ctx, o.query, union.Quads())
}
