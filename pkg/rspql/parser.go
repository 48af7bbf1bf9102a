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

// Package rspql parses continuous RSP-QL queries. A query declares one or more named windows over
// streams and embeds a SPARQL SELECT query which is evaluated over the content of the windows.
//
//	PREFIX ex: <http://example.org/>
//	REGISTER RStream <output> AS
//	SELECT ?s ?o
//	FROM NAMED WINDOW ex:w1 ON STREAM ex:stream1 [RANGE 10000 STEP 2000]
//	WHERE {
//	    WINDOW ex:w1 { ?s ex:p ?o }
//	}
//
// The embedded query keeps the prefixes, loses the REGISTER and FROM NAMED WINDOW clauses, and
// addresses every window as the named graph of the window IRI.
package rspql

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/numaproj/numaflow-rsp/pkg/window"
)

var (
	ErrSyntax           = errors.New("rspql syntax error")
	ErrNoWindow         = errors.New("query declares no window")
	ErrDuplicateWindow  = errors.New("window declared twice")
	ErrInvalidRange     = errors.New("window range and step must be positive")
	ErrUndeclaredWindow = errors.New("window is not declared")
	ErrUnknownPrefix    = errors.New("unknown prefix")
)

var (
	prefixRe   = regexp.MustCompile(`(?i)\bPREFIX\s+([A-Za-z][\w\-.]*)?:\s*<([^>]*)>`)
	registerRe = regexp.MustCompile(`(?i)\bREGISTER\s+(RSTREAM|ISTREAM|DSTREAM)\s+(\S+)\s+AS\b`)
	fromRe     = regexp.MustCompile(`(?i)\bFROM\s+NAMED\s+WINDOW\b`)
	windowRe   = regexp.MustCompile(`(?i)\bFROM\s+NAMED\s+WINDOW\s+(\S+)\s+ON\s+STREAM\s+(\S+)\s*\[\s*RANGE\s+(-?\d+)\s+(?:STEP\s+(-?\d+)|(TUMBLING))\s*\]`)
	clauseRe   = regexp.MustCompile(`(?i)\bWINDOW\s+(<[^>]*>|[\w\-.]*:[\w\-.]*)\s*\{`)
)

// WindowDefinition is one FROM NAMED WINDOW declaration, names are absolute IRIs.
type WindowDefinition struct {
	Name   string
	Stream string
	Width  int64
	Slide  int64
}

// Tumbling reports whether successive windows do not overlap.
func (w WindowDefinition) Tumbling() bool {
	return w.Width == w.Slide
}

func (w WindowDefinition) String() string {
	return fmt.Sprintf("%s on %s [RANGE %d STEP %d]", w.Name, w.Stream, w.Width, w.Slide)
}

// ParsedQuery is the result of parsing a continuous query.
type ParsedQuery struct {
	// StreamType is the REGISTER kind, RStream when the query does not register
	StreamType window.StreamType
	// Output is the registered output name, empty when the query does not register
	Output   string
	Prefixes map[string]string
	// Windows are ordered as declared
	Windows []WindowDefinition
	// SPARQL is the embedded query
	SPARQL string
}

// Window returns the definition of the named window.
func (p *ParsedQuery) Window(name string) (WindowDefinition, bool) {
	for _, w := range p.Windows {
		if w.Name == name {
			return w, true
		}
	}
	return WindowDefinition{}, false
}

// Parser is the default RSP-QL parser.
type Parser struct{}

// NewParser returns a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses the query.
func (p *Parser) Parse(query string) (*ParsedQuery, error) {
	return Parse(query)
}

// Parse parses the query.
func Parse(query string) (*ParsedQuery, error) {
	parsed := &ParsedQuery{
		StreamType: window.RStream,
		Prefixes:   make(map[string]string),
	}
	for _, m := range prefixRe.FindAllStringSubmatch(query, -1) {
		parsed.Prefixes[m[1]] = m[2]
	}

	body := query
	if m := registerRe.FindStringSubmatchIndex(body); m != nil {
		switch strings.ToUpper(body[m[2]:m[3]]) {
		case "ISTREAM":
			parsed.StreamType = window.IStream
		case "DSTREAM":
			parsed.StreamType = window.DStream
		}
		output, err := expand(body[m[4]:m[5]], parsed.Prefixes)
		if err != nil {
			return nil, err
		}
		parsed.Output = output
		body = body[:m[0]] + body[m[1]:]
	}

	declared := len(fromRe.FindAllStringIndex(body, -1))
	matches := windowRe.FindAllStringSubmatch(body, -1)
	if len(matches) != declared {
		return nil, fmt.Errorf("%w: malformed FROM NAMED WINDOW clause", ErrSyntax)
	}
	if declared == 0 {
		return nil, ErrNoWindow
	}
	for _, m := range matches {
		def, err := parseWindow(m, parsed.Prefixes)
		if err != nil {
			return nil, err
		}
		if _, ok := parsed.Window(def.Name); ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWindow, def.Name)
		}
		parsed.Windows = append(parsed.Windows, def)
	}
	body = windowRe.ReplaceAllString(body, "")

	var clauseErr error
	body = clauseRe.ReplaceAllStringFunc(body, func(clause string) string {
		name := clauseRe.FindStringSubmatch(clause)[1]
		iri, err := expand(name, parsed.Prefixes)
		if err != nil {
			clauseErr = err
			return clause
		}
		if _, ok := parsed.Window(iri); !ok {
			clauseErr = fmt.Errorf("%w: %s", ErrUndeclaredWindow, iri)
			return clause
		}
		return "GRAPH <" + iri + "> {"
	})
	if clauseErr != nil {
		return nil, clauseErr
	}
	parsed.SPARQL = strings.TrimSpace(body)
	return parsed, nil
}

func parseWindow(m []string, prefixes map[string]string) (WindowDefinition, error) {
	name, err := expand(m[1], prefixes)
	if err != nil {
		return WindowDefinition{}, err
	}
	stream, err := expand(m[2], prefixes)
	if err != nil {
		return WindowDefinition{}, err
	}
	width, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return WindowDefinition{}, fmt.Errorf("%w: range %q: %v", ErrSyntax, m[3], err)
	}
	slide := width
	if m[5] == "" {
		if slide, err = strconv.ParseInt(m[4], 10, 64); err != nil {
			return WindowDefinition{}, fmt.Errorf("%w: step %q: %v", ErrSyntax, m[4], err)
		}
	}
	if width <= 0 || slide <= 0 {
		return WindowDefinition{}, fmt.Errorf("%w: window %s has range %d and step %d", ErrInvalidRange, name, width, slide)
	}
	return WindowDefinition{Name: name, Stream: stream, Width: width, Slide: slide}, nil
}

// expand resolves <iri> and prefixed names to absolute IRIs.
func expand(term string, prefixes map[string]string) (string, error) {
	if strings.HasPrefix(term, "<") && strings.HasSuffix(term, ">") {
		return term[1 : len(term)-1], nil
	}
	idx := strings.Index(term, ":")
	if idx < 0 {
		return "", fmt.Errorf("%w: %q is neither an IRI nor a prefixed name", ErrSyntax, term)
	}
	ns, ok := prefixes[term[:idx]]
	if !ok {
		return "", fmt.Errorf("%w: %q in %q", ErrUnknownPrefix, term[:idx], term)
	}
	return ns + term[idx+1:], nil
}
