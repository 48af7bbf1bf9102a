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

// Package rdf holds the graph data model flowing through the streams: terms, quads and the
// N-Quads line codec used by the sources.
// Terms and quads are plain comparable values, so they can be used directly as map keys.
package rdf

import (
	"strings"
)

// Well known datatype IRIs.
const (
	XSDString  = "http://www.w3.org/2001/XMLSchema#string"
	XSDInteger = "http://www.w3.org/2001/XMLSchema#integer"
	XSDDecimal = "http://www.w3.org/2001/XMLSchema#decimal"
	XSDDouble  = "http://www.w3.org/2001/XMLSchema#double"
	XSDFloat   = "http://www.w3.org/2001/XMLSchema#float"
	XSDLong    = "http://www.w3.org/2001/XMLSchema#long"
	XSDInt     = "http://www.w3.org/2001/XMLSchema#int"
	XSDBoolean = "http://www.w3.org/2001/XMLSchema#boolean"
	RDFType    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFLangStr = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

// TermKind is the kind of RDF term
type TermKind uint8

const (
	// DefaultGraphKind is the zero value, so an empty Graph field means the default graph.
	DefaultGraphKind TermKind = iota
	IRIKind
	BlankNodeKind
	LiteralKind
)

func (k TermKind) String() string {
	switch k {
	case DefaultGraphKind:
		return "DefaultGraph"
	case IRIKind:
		return "IRI"
	case BlankNodeKind:
		return "BlankNode"
	case LiteralKind:
		return "Literal"
	default:
		return "Unknown"
	}
}

// Term is an RDF term. Datatype and Language are only set for literals.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Language string
}

// NewIRI returns a named node.
func NewIRI(iri string) Term {
	return Term{Kind: IRIKind, Value: iri}
}

// NewBlankNode returns a blank node with the given label (without the "_:" prefix).
func NewBlankNode(id string) Term {
	return Term{Kind: BlankNodeKind, Value: id}
}

// NewLiteral returns a simple literal.
func NewLiteral(value string) Term {
	return Term{Kind: LiteralKind, Value: value}
}

// NewTypedLiteral returns a literal with a datatype. xsd:string collapses to a simple literal.
func NewTypedLiteral(value string, datatype string) Term {
	if datatype == XSDString {
		datatype = ""
	}
	return Term{Kind: LiteralKind, Value: value, Datatype: datatype}
}

// NewLangLiteral returns a language tagged literal.
func NewLangLiteral(value string, lang string) Term {
	return Term{Kind: LiteralKind, Value: value, Language: strings.ToLower(lang)}
}

// DefaultGraph returns the default graph term.
func DefaultGraph() Term {
	return Term{}
}

func (t Term) IsIRI() bool {
	return t.Kind == IRIKind
}

func (t Term) IsLiteral() bool {
	return t.Kind == LiteralKind
}

func (t Term) IsDefaultGraph() bool {
	return t.Kind == DefaultGraphKind
}

// IsNumeric reports whether the term is a literal with a numeric xsd datatype.
func (t Term) IsNumeric() bool {
	if t.Kind != LiteralKind {
		return false
	}
	switch t.Datatype {
	case XSDInteger, XSDDecimal, XSDDouble, XSDFloat, XSDLong, XSDInt:
		return true
	default:
		return false
	}
}

// String returns the N-Triples form of the term. The default graph renders as an empty string.
func (t Term) String() string {
	switch t.Kind {
	case IRIKind:
		return "<" + t.Value + ">"
	case BlankNodeKind:
		return "_:" + t.Value
	case LiteralKind:
		var b strings.Builder
		b.WriteByte('"')
		b.WriteString(escapeLiteral(t.Value))
		b.WriteByte('"')
		if t.Language != "" {
			b.WriteByte('@')
			b.WriteString(t.Language)
		} else if t.Datatype != "" {
			b.WriteString("^^<")
			b.WriteString(t.Datatype)
			b.WriteByte('>')
		}
		return b.String()
	default:
		return ""
	}
}

// MarshalText renders the term in N-Triples form, so results serialize readably.
func (t Term) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a single N-Triples term.
func (t *Term) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*t = DefaultGraph()
		return nil
	}
	l := &lexer{input: string(text)}
	term, err := l.term()
	if err != nil {
		return err
	}
	*t = term
	return nil
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}
