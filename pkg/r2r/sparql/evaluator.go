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

// Package sparql is an in-memory evaluator for the SELECT subset of SPARQL used by continuous queries:
// basic graph patterns with the ';' and ',' abbreviations, GRAPH groups, FILTER, aggregates with
// GROUP BY, DISTINCT, ORDER BY, LIMIT and OFFSET. Triple patterns outside a GRAPH group match quads
// of every graph.
package sparql

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/antonmedv/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/numaproj/numaflow-rsp/pkg/r2r"
	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

var (
	ErrSyntax      = errors.New("sparql syntax error")
	ErrUnsupported = errors.New("unsupported sparql feature")
)

// Evaluator evaluates SELECT queries over a slice of quads. Parsed queries and compiled filters
// are cached, Evaluator is safe for concurrent use.
type Evaluator struct {
	queries *lru.Cache[string, *selectQuery]
	filters *lru.Cache[string, *vm.Program]
}

var _ r2r.Evaluator = (*Evaluator)(nil)

// NewEvaluator returns an Evaluator.
func NewEvaluator(opts ...Option) (*Evaluator, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	queries, err := lru.New[string, *selectQuery](o.queryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}
	filters, err := lru.New[string, *vm.Program](o.filterCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create filter cache: %w", err)
	}
	return &Evaluator{queries: queries, filters: filters}, nil
}

// Evaluate evaluates the query over the quads.
func (e *Evaluator) Evaluate(ctx context.Context, query string, quads []rdf.Quad) ([]r2r.Binding, error) {
	q, err := e.prepare(query)
	if err != nil {
		return nil, err
	}
	solutions, err := evalGroup(ctx, q.where, nil, quads, []r2r.Binding{{}})
	if err != nil {
		return nil, err
	}
	if q.hasAggregates() || len(q.groupBy) > 0 {
		solutions = aggregateSolutions(q, solutions)
	}
	orderSolutions(q.orderBy, solutions)
	solutions = project(q, solutions)
	if q.distinct {
		solutions = distinct(solutions)
	}
	return slice(solutions, q.offset, q.limit), nil
}

func (e *Evaluator) prepare(query string) (*selectQuery, error) {
	if q, ok := e.queries.Get(query); ok {
		return q, nil
	}
	q, err := parseQuery(query, e.compileFilter)
	if err != nil {
		return nil, err
	}
	e.queries.Add(query, q)
	return q, nil
}

func (e *Evaluator) compileFilter(source string, expression string) (*filter, error) {
	if program, ok := e.filters.Get(expression); ok {
		return &filter{source: source, program: program}, nil
	}
	program, err := compileFilter(expression)
	if err != nil {
		return nil, err
	}
	e.filters.Add(expression, program)
	return &filter{source: source, program: program}, nil
}

// evalGroup joins the solutions with every element of the group, then applies the group filters.
// graph is the graph constraint inherited from an enclosing GRAPH group.
func evalGroup(ctx context.Context, g *group, graph *node, quads []rdf.Quad, solutions []r2r.Binding) ([]r2r.Binding, error) {
	if g.graph != nil {
		graph = g.graph
	}
	for _, el := range g.elements {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if el.group != nil {
			var err error
			if solutions, err = evalGroup(ctx, el.group, graph, quads, solutions); err != nil {
				return nil, err
			}
		} else {
			solutions = evalTriple(el.triple, graph, quads, solutions)
		}
		if len(solutions) == 0 {
			return solutions, nil
		}
	}
	if len(g.filters) == 0 {
		return solutions, nil
	}
	filtered := solutions[:0:0]
	for _, b := range solutions {
		keep := true
		for _, f := range g.filters {
			if !f.matches(b) {
				keep = false
				break
			}
		}
		if keep {
			filtered = append(filtered, b)
		}
	}
	return filtered, nil
}

func evalTriple(tp *triplePattern, graph *node, quads []rdf.Quad, solutions []r2r.Binding) []r2r.Binding {
	var out []r2r.Binding
	for _, b := range solutions {
		for _, q := range quads {
			if graph != nil && q.Graph.IsDefaultGraph() {
				continue
			}
			if ext, ok := match(tp, graph, q, b); ok {
				out = append(out, ext)
			}
		}
	}
	return out
}

// match extends b so that the pattern matches q. b is copied before its first extension and never mutated.
func match(tp *triplePattern, graph *node, q rdf.Quad, b r2r.Binding) (r2r.Binding, bool) {
	ext := b
	copied := false
	check := func(n node, t rdf.Term) bool {
		if !n.isVar() {
			return n.term == t
		}
		if bound, ok := ext[n.variable]; ok {
			return bound == t
		}
		if !copied {
			ext = copyBinding(b)
			copied = true
		}
		ext[n.variable] = t
		return true
	}
	if !check(tp.s, q.Subject) || !check(tp.p, q.Predicate) || !check(tp.o, q.Object) {
		return nil, false
	}
	if graph != nil && !check(*graph, q.Graph) {
		return nil, false
	}
	return ext, true
}

func copyBinding(b r2r.Binding) r2r.Binding {
	out := make(r2r.Binding, len(b)+2)
	for k, v := range b {
		out[k] = v
	}
	return out
}

func project(q *selectQuery, solutions []r2r.Binding) []r2r.Binding {
	var names []string
	if q.star {
		for _, v := range q.variables {
			if !strings.HasPrefix(v, "_:") {
				names = append(names, v)
			}
		}
	} else {
		for _, p := range q.projections {
			names = append(names, p.variable)
		}
	}
	out := make([]r2r.Binding, 0, len(solutions))
	for _, b := range solutions {
		projected := make(r2r.Binding, len(names))
		for _, name := range names {
			if t, ok := b[name]; ok {
				projected[name] = t
			}
		}
		out = append(out, projected)
	}
	return out
}

func distinct(solutions []r2r.Binding) []r2r.Binding {
	seen := make(map[string]bool, len(solutions))
	out := solutions[:0:0]
	for _, b := range solutions {
		key := b.String()
		if !seen[key] {
			seen[key] = true
			out = append(out, b)
		}
	}
	return out
}

func orderSolutions(conditions []orderCondition, solutions []r2r.Binding) {
	if len(conditions) == 0 {
		return
	}
	sort.SliceStable(solutions, func(i, j int) bool {
		for _, c := range conditions {
			cmp := compareTerms(solutions[i][c.variable], solutions[j][c.variable])
			if cmp == 0 {
				continue
			}
			if c.descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func slice(solutions []r2r.Binding, offset, limit int) []r2r.Binding {
	if offset >= len(solutions) {
		return []r2r.Binding{}
	}
	solutions = solutions[offset:]
	if limit >= 0 && limit < len(solutions) {
		solutions = solutions[:limit]
	}
	return solutions
}
