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

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrSyntax is returned for malformed N-Quads input.
var ErrSyntax = errors.New("invalid n-quads syntax")

// ParseQuad parses a single N-Quads statement. The terminating dot is mandatory,
// the graph label is optional.
func ParseQuad(line string) (Quad, error) {
	l := &lexer{input: strings.TrimSpace(line)}
	var (
		q   Quad
		err error
	)
	if q.Subject, err = l.term(); err != nil {
		return Quad{}, err
	}
	if q.Subject.Kind != IRIKind && q.Subject.Kind != BlankNodeKind {
		return Quad{}, fmt.Errorf("%w: subject must be an IRI or a blank node", ErrSyntax)
	}
	if q.Predicate, err = l.term(); err != nil {
		return Quad{}, err
	}
	if q.Predicate.Kind != IRIKind {
		return Quad{}, fmt.Errorf("%w: predicate must be an IRI", ErrSyntax)
	}
	if q.Object, err = l.term(); err != nil {
		return Quad{}, err
	}
	l.skipSpace()
	if l.peek() != '.' {
		if q.Graph, err = l.term(); err != nil {
			return Quad{}, err
		}
		if q.Graph.Kind == LiteralKind {
			return Quad{}, fmt.Errorf("%w: graph label cannot be a literal", ErrSyntax)
		}
		l.skipSpace()
	}
	if l.peek() != '.' {
		return Quad{}, fmt.Errorf("%w: expected '.' at offset %d", ErrSyntax, l.pos)
	}
	l.pos++
	l.skipSpace()
	if !l.eof() && l.peek() != '#' {
		return Quad{}, fmt.Errorf("%w: trailing input %q", ErrSyntax, l.input[l.pos:])
	}
	return q, nil
}

// ReadQuads reads N-Quads statements, one per line. Blank lines and comments are skipped.
func ReadQuads(r io.Reader) ([]Quad, error) {
	var quads []Quad
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		q, err := ParseQuad(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		quads = append(quads, q)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return quads, nil
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) eof() bool {
	return l.pos >= len(l.input)
}

func (l *lexer) peek() byte {
	if l.eof() {
		return 0
	}
	return l.input[l.pos]
}

func (l *lexer) skipSpace() {
	for !l.eof() && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t') {
		l.pos++
	}
}

func (l *lexer) term() (Term, error) {
	l.skipSpace()
	switch {
	case l.eof():
		return Term{}, fmt.Errorf("%w: unexpected end of statement", ErrSyntax)
	case l.peek() == '<':
		iri, err := l.iri()
		if err != nil {
			return Term{}, err
		}
		return NewIRI(iri), nil
	case strings.HasPrefix(l.input[l.pos:], "_:"):
		l.pos += 2
		start := l.pos
		for !l.eof() && !isDelimiter(l.peek()) {
			l.pos++
		}
		if start == l.pos {
			return Term{}, fmt.Errorf("%w: empty blank node label", ErrSyntax)
		}
		return NewBlankNode(l.input[start:l.pos]), nil
	case l.peek() == '"':
		return l.literal()
	default:
		return Term{}, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, l.peek(), l.pos)
	}
}

func (l *lexer) iri() (string, error) {
	end := strings.IndexByte(l.input[l.pos:], '>')
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated IRI", ErrSyntax)
	}
	iri := l.input[l.pos+1 : l.pos+end]
	l.pos += end + 1
	return iri, nil
}

func (l *lexer) literal() (Term, error) {
	l.pos++ // opening quote
	var b strings.Builder
	for {
		if l.eof() {
			return Term{}, fmt.Errorf("%w: unterminated literal", ErrSyntax)
		}
		c := l.input[l.pos]
		if c == '"' {
			l.pos++
			break
		}
		if c == '\\' {
			if l.pos+1 >= len(l.input) {
				return Term{}, fmt.Errorf("%w: dangling escape", ErrSyntax)
			}
			switch l.input[l.pos+1] {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				return Term{}, fmt.Errorf("%w: unsupported escape \\%c", ErrSyntax, l.input[l.pos+1])
			}
			l.pos += 2
			continue
		}
		b.WriteByte(c)
		l.pos++
	}
	value := b.String()
	switch {
	case l.peek() == '@':
		l.pos++
		start := l.pos
		for !l.eof() && !isDelimiter(l.peek()) {
			l.pos++
		}
		if start == l.pos {
			return Term{}, fmt.Errorf("%w: empty language tag", ErrSyntax)
		}
		return NewLangLiteral(value, l.input[start:l.pos]), nil
	case strings.HasPrefix(l.input[l.pos:], "^^"):
		l.pos += 2
		if l.peek() != '<' {
			return Term{}, fmt.Errorf("%w: datatype must be an IRI", ErrSyntax)
		}
		dt, err := l.iri()
		if err != nil {
			return Term{}, err
		}
		return NewTypedLiteral(value, dt), nil
	default:
		return NewLiteral(value), nil
	}
}

func isDelimiter(c byte) bool {
	return c == ' ' || c == '\t' || c == '.' || c == '<' || c == '"'
}
