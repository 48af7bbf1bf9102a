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
	"fmt"
	"strconv"
	"strings"

	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// node is either a variable or a concrete term.
type node struct {
	variable string
	term     rdf.Term
}

func (n node) isVar() bool {
	return n.variable != ""
}

type triplePattern struct {
	s, p, o node
}

// element is one member of a group, either a triple pattern or a nested group.
type element struct {
	triple *triplePattern
	group  *group
}

type group struct {
	// graph is set for GRAPH groups
	graph    *node
	elements []element
	filters  []*filter
}

type aggregateKind int

const (
	aggCount aggregateKind = iota
	aggSum
	aggMin
	aggMax
	aggAvg
)

type projection struct {
	variable string
	// aggregate is set for (AGG(?v) AS ?alias) projections, variable is then the alias
	aggregate *aggregate
}

type aggregate struct {
	kind     aggregateKind
	variable string // empty for COUNT(*)
	distinct bool
}

type orderCondition struct {
	variable   string
	descending bool
}

type selectQuery struct {
	distinct    bool
	star        bool
	projections []projection
	where       *group
	groupBy     []string
	orderBy     []orderCondition
	limit       int
	offset      int
	// variables in order of first appearance
	variables []string
}

func (q *selectQuery) hasAggregates() bool {
	for _, p := range q.projections {
		if p.aggregate != nil {
			return true
		}
	}
	return false
}

type parser struct {
	tokens   []token
	pos      int
	prefixes map[string]string
	seen     map[string]bool
	query    *selectQuery
	filters  filterCompiler
}

// filterCompiler compiles a translated FILTER expression.
type filterCompiler func(source string, expression string) (*filter, error)

func parseQuery(input string, compile filterCompiler) (*selectQuery, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{
		tokens:   tokens,
		prefixes: make(map[string]string),
		seen:     make(map[string]bool),
		query:    &selectQuery{limit: -1},
		filters:  compile,
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.query, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(value string) error {
	t := p.next()
	if !t.is(value) {
		return fmt.Errorf("%w: expected %q, found %s", ErrSyntax, value, t)
	}
	return nil
}

func (p *parser) parse() error {
	for {
		t := p.peek()
		switch {
		case t.is("PREFIX"):
			p.next()
			ns := p.next()
			if ns.kind != tokPName || !strings.HasSuffix(ns.value, ":") {
				return fmt.Errorf("%w: expected prefix name, found %s", ErrSyntax, ns)
			}
			iri := p.next()
			if iri.kind != tokIRI {
				return fmt.Errorf("%w: expected IRI, found %s", ErrSyntax, iri)
			}
			p.prefixes[strings.TrimSuffix(ns.value, ":")] = iri.value
		case t.is("BASE"):
			p.next()
			p.next()
		case t.is("SELECT"):
			p.next()
			return p.parseSelect()
		case t.kind == tokEOF:
			return fmt.Errorf("%w: missing SELECT", ErrSyntax)
		default:
			return fmt.Errorf("%w: only SELECT queries are supported, found %s", ErrUnsupported, t)
		}
	}
}

func (p *parser) parseSelect() error {
	q := p.query
	if p.peek().is("DISTINCT") || p.peek().is("REDUCED") {
		q.distinct = true
		p.next()
	}
	if p.peek().is("*") {
		p.next()
		q.star = true
	} else {
		for {
			t := p.peek()
			if t.kind == tokVar {
				p.next()
				q.projections = append(q.projections, projection{variable: t.value})
				continue
			}
			if t.is("(") {
				proj, err := p.parseAggregateProjection()
				if err != nil {
					return err
				}
				q.projections = append(q.projections, proj)
				continue
			}
			break
		}
		if len(q.projections) == 0 {
			return fmt.Errorf("%w: empty projection, found %s", ErrSyntax, p.peek())
		}
	}

	// dataset clauses are ignored, the data is always the window content
	for p.peek().is("FROM") {
		p.next()
		if p.peek().is("NAMED") {
			p.next()
		}
		p.next()
	}
	if p.peek().is("WHERE") {
		p.next()
	}
	where, err := p.parseGroup(nil)
	if err != nil {
		return err
	}
	q.where = where

	if p.peek().is("GROUP") {
		p.next()
		if err := p.expect("BY"); err != nil {
			return err
		}
		for p.peek().kind == tokVar {
			q.groupBy = append(q.groupBy, p.next().value)
		}
		if len(q.groupBy) == 0 {
			return fmt.Errorf("%w: GROUP BY needs variables, found %s", ErrSyntax, p.peek())
		}
	}
	if p.peek().is("ORDER") {
		p.next()
		if err := p.expect("BY"); err != nil {
			return err
		}
		for {
			cond, ok, err := p.parseOrderCondition()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			q.orderBy = append(q.orderBy, cond)
		}
		if len(q.orderBy) == 0 {
			return fmt.Errorf("%w: ORDER BY needs conditions, found %s", ErrSyntax, p.peek())
		}
	}
	for p.peek().is("LIMIT") || p.peek().is("OFFSET") {
		keyword := p.next()
		n := p.next()
		value, err := strconv.Atoi(n.value)
		if n.kind != tokNumber || err != nil {
			return fmt.Errorf("%w: %s needs an integer, found %s", ErrSyntax, keyword.value, n)
		}
		if keyword.is("LIMIT") {
			q.limit = value
		} else {
			q.offset = value
		}
	}
	if t := p.peek(); t.kind != tokEOF {
		return fmt.Errorf("%w: unexpected %s", ErrSyntax, t)
	}
	return p.validate()
}

func (p *parser) validate() error {
	q := p.query
	if q.star && len(q.groupBy) > 0 {
		return fmt.Errorf("%w: SELECT * cannot be used with GROUP BY", ErrSyntax)
	}
	if !q.hasAggregates() && len(q.groupBy) == 0 {
		return nil
	}
	grouped := make(map[string]bool, len(q.groupBy))
	for _, v := range q.groupBy {
		grouped[v] = true
	}
	for _, proj := range q.projections {
		if proj.aggregate == nil && !grouped[proj.variable] {
			return fmt.Errorf("%w: ?%s is projected but neither grouped nor aggregated", ErrSyntax, proj.variable)
		}
	}
	return nil
}

func (p *parser) parseAggregateProjection() (projection, error) {
	if err := p.expect("("); err != nil {
		return projection{}, err
	}
	name := p.next()
	agg := &aggregate{}
	switch strings.ToUpper(name.value) {
	case "COUNT":
		agg.kind = aggCount
	case "SUM":
		agg.kind = aggSum
	case "MIN":
		agg.kind = aggMin
	case "MAX":
		agg.kind = aggMax
	case "AVG":
		agg.kind = aggAvg
	default:
		return projection{}, fmt.Errorf("%w: aggregate %s", ErrUnsupported, name)
	}
	if err := p.expect("("); err != nil {
		return projection{}, err
	}
	if p.peek().is("DISTINCT") {
		p.next()
		agg.distinct = true
	}
	arg := p.next()
	switch {
	case arg.kind == tokVar:
		agg.variable = arg.value
	case arg.is("*") && agg.kind == aggCount:
	default:
		return projection{}, fmt.Errorf("%w: aggregate argument must be a variable, found %s", ErrUnsupported, arg)
	}
	if err := p.expect(")"); err != nil {
		return projection{}, err
	}
	if err := p.expect("AS"); err != nil {
		return projection{}, err
	}
	alias := p.next()
	if alias.kind != tokVar {
		return projection{}, fmt.Errorf("%w: expected alias variable, found %s", ErrSyntax, alias)
	}
	if err := p.expect(")"); err != nil {
		return projection{}, err
	}
	return projection{variable: alias.value, aggregate: agg}, nil
}

func (p *parser) parseOrderCondition() (orderCondition, bool, error) {
	t := p.peek()
	switch {
	case t.kind == tokVar:
		p.next()
		return orderCondition{variable: t.value}, true, nil
	case t.is("ASC") || t.is("DESC"):
		p.next()
		if err := p.expect("("); err != nil {
			return orderCondition{}, false, err
		}
		v := p.next()
		if v.kind != tokVar {
			return orderCondition{}, false, fmt.Errorf("%w: ORDER BY supports variables only, found %s", ErrUnsupported, v)
		}
		if err := p.expect(")"); err != nil {
			return orderCondition{}, false, err
		}
		return orderCondition{variable: v.value, descending: t.is("DESC")}, true, nil
	default:
		return orderCondition{}, false, nil
	}
}

func (p *parser) parseGroup(graph *node) (*group, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	g := &group{graph: graph}
	for {
		t := p.peek()
		switch {
		case t.is("}"):
			p.next()
			return g, nil
		case t.kind == tokEOF:
			return nil, fmt.Errorf("%w: unterminated group", ErrSyntax)
		case t.is("."):
			p.next()
		case t.is("{"):
			sub, err := p.parseGroup(nil)
			if err != nil {
				return nil, err
			}
			g.elements = append(g.elements, element{group: sub})
		case t.is("GRAPH"):
			p.next()
			n, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			sub, err := p.parseGroup(&n)
			if err != nil {
				return nil, err
			}
			g.elements = append(g.elements, element{group: sub})
		case t.is("FILTER"):
			p.next()
			f, err := p.parseFilter()
			if err != nil {
				return nil, err
			}
			g.filters = append(g.filters, f)
		case t.is("OPTIONAL") || t.is("UNION") || t.is("MINUS") || t.is("BIND") || t.is("VALUES") || t.is("SERVICE"):
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, t)
		default:
			triples, err := p.parseTriples()
			if err != nil {
				return nil, err
			}
			for i := range triples {
				g.elements = append(g.elements, element{triple: &triples[i]})
			}
		}
	}
}

// parseTriples parses one subject with its property list, expanding ';' and ',' abbreviations.
func (p *parser) parseTriples() ([]triplePattern, error) {
	subject, err := p.parseNode()
	if err != nil {
		return nil, err
	}
	var triples []triplePattern
	for {
		var predicate node
		if p.peek().kind == tokIdent && p.peek().value == "a" {
			p.next()
			predicate = node{term: rdf.NewIRI(rdfType)}
		} else if predicate, err = p.parseNode(); err != nil {
			return nil, err
		}
		for {
			object, err := p.parseNode()
			if err != nil {
				return nil, err
			}
			triples = append(triples, triplePattern{s: subject, p: predicate, o: object})
			if !p.peek().is(",") {
				break
			}
			p.next()
		}
		if !p.peek().is(";") {
			return triples, nil
		}
		for p.peek().is(";") {
			p.next()
		}
		if t := p.peek(); t.is(".") || t.is("}") {
			return triples, nil
		}
	}
}

func (p *parser) parseNode() (node, error) {
	t := p.next()
	switch t.kind {
	case tokVar:
		p.declare(t.value)
		return node{variable: t.value}, nil
	case tokIRI:
		return node{term: rdf.NewIRI(t.value)}, nil
	case tokPName:
		iri, err := p.expand(t)
		if err != nil {
			return node{}, err
		}
		return node{term: rdf.NewIRI(iri)}, nil
	case tokString:
		return p.literal(t.value)
	case tokNumber:
		return node{term: numberTerm(t.value)}, nil
	case tokOp:
		if (t.value == "-" || t.value == "+") && p.peek().kind == tokNumber {
			n := p.next()
			value := n.value
			if t.value == "-" {
				value = "-" + value
			}
			return node{term: numberTerm(value)}, nil
		}
	case tokIdent:
		if t.is("true") || t.is("false") {
			return node{term: rdf.NewTypedLiteral(strings.ToLower(t.value), rdf.XSDBoolean)}, nil
		}
	}
	return node{}, fmt.Errorf("%w: expected a term, found %s", ErrSyntax, t)
}

func (p *parser) literal(value string) (node, error) {
	switch t := p.peek(); {
	case t.kind == tokLang:
		p.next()
		return node{term: rdf.NewLangLiteral(value, t.value)}, nil
	case t.is("^^"):
		p.next()
		dt := p.next()
		switch dt.kind {
		case tokIRI:
			return node{term: rdf.NewTypedLiteral(value, dt.value)}, nil
		case tokPName:
			iri, err := p.expand(dt)
			if err != nil {
				return node{}, err
			}
			return node{term: rdf.NewTypedLiteral(value, iri)}, nil
		default:
			return node{}, fmt.Errorf("%w: expected datatype IRI, found %s", ErrSyntax, dt)
		}
	default:
		return node{term: rdf.NewLiteral(value)}, nil
	}
}

func (p *parser) expand(t token) (string, error) {
	idx := strings.Index(t.value, ":")
	ns, ok := p.prefixes[t.value[:idx]]
	if !ok {
		return "", fmt.Errorf("%w: unknown prefix %q in %s", ErrSyntax, t.value[:idx], t)
	}
	return ns + t.value[idx+1:], nil
}

func (p *parser) declare(variable string) {
	if !p.seen[variable] {
		p.seen[variable] = true
		p.query.variables = append(p.query.variables, variable)
	}
}

func numberTerm(lexical string) rdf.Term {
	switch {
	case strings.ContainsAny(lexical, "eE"):
		return rdf.NewTypedLiteral(lexical, rdf.XSDDouble)
	case strings.Contains(lexical, "."):
		return rdf.NewTypedLiteral(lexical, rdf.XSDDecimal)
	default:
		return rdf.NewTypedLiteral(lexical, rdf.XSDInteger)
	}
}
