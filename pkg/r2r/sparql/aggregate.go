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

package sparql

import (
	"math"
	"strconv"
	"strings"

	"github.com/numaproj/numaflow-rsp/pkg/r2r"
	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

// aggregateSolutions partitions the solutions by the GROUP BY variables and computes one row per
// partition. Without GROUP BY every solution falls in a single partition, which exists even when
// there are no solutions.
func aggregateSolutions(q *selectQuery, solutions []r2r.Binding) []r2r.Binding {
	type partition struct {
		key  r2r.Binding
		rows []r2r.Binding
	}
	var order []string
	partitions := make(map[string]*partition)
	if len(q.groupBy) == 0 {
		order = append(order, "")
		partitions[""] = &partition{key: r2r.Binding{}}
	}
	for _, b := range solutions {
		key := make(r2r.Binding, len(q.groupBy))
		var sb strings.Builder
		for _, v := range q.groupBy {
			if t, ok := b[v]; ok {
				key[v] = t
				sb.WriteString(t.String())
			}
			sb.WriteByte(0)
		}
		id := sb.String()
		p, ok := partitions[id]
		if !ok {
			p = &partition{key: key}
			partitions[id] = p
			order = append(order, id)
		}
		p.rows = append(p.rows, b)
	}

	out := make([]r2r.Binding, 0, len(order))
	for _, id := range order {
		p := partitions[id]
		row := make(r2r.Binding, len(p.key)+len(q.projections))
		for k, v := range p.key {
			row[k] = v
		}
		for _, proj := range q.projections {
			if proj.aggregate == nil {
				continue
			}
			if t, ok := proj.aggregate.compute(p.rows); ok {
				row[proj.variable] = t
			}
		}
		out = append(out, row)
	}
	return out
}

func (a *aggregate) compute(rows []r2r.Binding) (rdf.Term, bool) {
	values := make([]rdf.Term, 0, len(rows))
	seen := make(map[rdf.Term]bool)
	for _, b := range rows {
		if a.variable == "" {
			values = append(values, rdf.Term{})
			continue
		}
		t, ok := b[a.variable]
		if !ok {
			continue
		}
		if a.distinct {
			if seen[t] {
				continue
			}
			seen[t] = true
		}
		values = append(values, t)
	}

	switch a.kind {
	case aggCount:
		return rdf.NewTypedLiteral(strconv.Itoa(len(values)), rdf.XSDInteger), true
	case aggSum, aggAvg:
		sum := 0.0
		n := 0
		integral := true
		for _, t := range values {
			f, ok := numericValue(t)
			if !ok {
				continue
			}
			sum += f
			n++
			if t.Datatype != rdf.XSDInteger && t.Datatype != rdf.XSDLong && t.Datatype != rdf.XSDInt {
				integral = false
			}
		}
		if a.kind == aggSum {
			return numericLiteral(sum, integral), true
		}
		if n == 0 {
			return rdf.NewTypedLiteral("0", rdf.XSDInteger), true
		}
		return numericLiteral(sum/float64(n), false), true
	case aggMin, aggMax:
		if len(values) == 0 {
			return rdf.Term{}, false
		}
		best := values[0]
		for _, t := range values[1:] {
			cmp := compareTerms(t, best)
			if (a.kind == aggMin && cmp < 0) || (a.kind == aggMax && cmp > 0) {
				best = t
			}
		}
		return best, true
	default:
		return rdf.Term{}, false
	}
}

func numericValue(t rdf.Term) (float64, bool) {
	if !t.IsNumeric() {
		return 0, false
	}
	f, err := strconv.ParseFloat(t.Value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func numericLiteral(f float64, integral bool) rdf.Term {
	if integral && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return rdf.NewTypedLiteral(strconv.FormatInt(int64(f), 10), rdf.XSDInteger)
	}
	return rdf.NewTypedLiteral(strconv.FormatFloat(f, 'f', -1, 64), rdf.XSDDecimal)
}

// compareTerms orders unbound before bound terms, numbers numerically and everything else lexically.
func compareTerms(a, b rdf.Term) int {
	aUnbound, bUnbound := a.IsDefaultGraph(), b.IsDefaultGraph()
	switch {
	case aUnbound && bUnbound:
		return 0
	case aUnbound:
		return -1
	case bUnbound:
		return 1
	}
	if af, ok := numericValue(a); ok {
		if bf, ok := numericValue(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if a.IsLiteral() && b.IsLiteral() {
		return strings.Compare(a.Value, b.Value)
	}
	return strings.Compare(a.String(), b.String())
}
