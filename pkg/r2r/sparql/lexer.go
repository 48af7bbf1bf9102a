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
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIRI
	tokPName
	tokVar
	tokString
	tokNumber
	tokIdent
	tokLang
	tokPunct
	tokOp
)

type token struct {
	kind  tokenKind
	value string
	pos   int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of query"
	}
	return fmt.Sprintf("%q at offset %d", t.value, t.pos)
}

// is reports whether the token is the given punctuation, operator or case insensitive keyword.
func (t token) is(value string) bool {
	switch t.kind {
	case tokPunct, tokOp:
		return t.value == value
	case tokIdent:
		return strings.EqualFold(t.value, value)
	default:
		return false
	}
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	pos := 0
	for pos < len(input) {
		c := input[pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			pos++
		case c == '#':
			for pos < len(input) && input[pos] != '\n' {
				pos++
			}
		case c == '<':
			if end, ok := scanIRI(input, pos); ok {
				tokens = append(tokens, token{kind: tokIRI, value: input[pos+1 : end], pos: pos})
				pos = end + 1
				continue
			}
			if strings.HasPrefix(input[pos:], "<=") {
				tokens = append(tokens, token{kind: tokOp, value: "<=", pos: pos})
				pos += 2
				continue
			}
			tokens = append(tokens, token{kind: tokOp, value: "<", pos: pos})
			pos++
		case c == '?' || c == '$':
			start := pos + 1
			end := start
			for end < len(input) && isNameChar(rune(input[end])) {
				end++
			}
			if end == start {
				return nil, fmt.Errorf("%w: empty variable name at offset %d", ErrSyntax, pos)
			}
			tokens = append(tokens, token{kind: tokVar, value: input[start:end], pos: pos})
			pos = end
		case c == '"' || c == '\'':
			value, end, err := scanString(input, pos)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokString, value: value, pos: pos})
			pos = end
		case c == '@':
			end := pos + 1
			for end < len(input) && (isLetterOrDigit(rune(input[end])) || input[end] == '-') {
				end++
			}
			tokens = append(tokens, token{kind: tokLang, value: input[pos+1 : end], pos: pos})
			pos = end
		case c >= '0' && c <= '9':
			end := scanNumber(input, pos)
			tokens = append(tokens, token{kind: tokNumber, value: input[pos:end], pos: pos})
			pos = end
		case c == '_' && strings.HasPrefix(input[pos:], "_:"):
			end := pos + 2
			for end < len(input) && isNameChar(rune(input[end])) {
				end++
			}
			// blank nodes in patterns behave like variables hidden from SELECT *
			tokens = append(tokens, token{kind: tokVar, value: input[pos:end], pos: pos})
			pos = end
		case isLetterOrDigit(rune(c)) || c == ':':
			end := pos
			for end < len(input) && (isNameChar(rune(input[end])) || input[end] == ':' || input[end] == '-' || input[end] == '.') {
				end++
			}
			for end > pos && input[end-1] == '.' {
				end--
			}
			word := input[pos:end]
			kind := tokIdent
			if strings.Contains(word, ":") {
				kind = tokPName
			}
			tokens = append(tokens, token{kind: kind, value: word, pos: pos})
			pos = end
		case strings.HasPrefix(input[pos:], "^^"), strings.HasPrefix(input[pos:], "&&"),
			strings.HasPrefix(input[pos:], "||"), strings.HasPrefix(input[pos:], "!="),
			strings.HasPrefix(input[pos:], ">="), strings.HasPrefix(input[pos:], "=="):
			tokens = append(tokens, token{kind: tokOp, value: input[pos : pos+2], pos: pos})
			pos += 2
		case strings.ContainsRune("=!>+-/", rune(c)):
			tokens = append(tokens, token{kind: tokOp, value: string(c), pos: pos})
			pos++
		case strings.ContainsRune("{}().;,*", rune(c)):
			tokens = append(tokens, token{kind: tokPunct, value: string(c), pos: pos})
			pos++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, c, pos)
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(input)}), nil
}

// scanIRI returns the offset of the closing '>' when an IRI starts at pos. IRIs never contain spaces.
func scanIRI(input string, pos int) (int, bool) {
	for i := pos + 1; i < len(input); i++ {
		switch input[i] {
		case '>':
			return i, i > pos+1
		case ' ', '\t', '\n', '\r', '<', '"', '{', '}':
			return 0, false
		}
	}
	return 0, false
}

func scanString(input string, pos int) (string, int, error) {
	quote := input[pos]
	var b strings.Builder
	i := pos + 1
	for i < len(input) {
		c := input[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\' && i+1 < len(input):
			switch input[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			default:
				b.WriteByte(input[i+1])
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, fmt.Errorf("%w: unterminated string at offset %d", ErrSyntax, pos)
}

func scanNumber(input string, pos int) int {
	end := pos
	for end < len(input) && input[end] >= '0' && input[end] <= '9' {
		end++
	}
	if end+1 < len(input) && input[end] == '.' && input[end+1] >= '0' && input[end+1] <= '9' {
		end++
		for end < len(input) && input[end] >= '0' && input[end] <= '9' {
			end++
		}
	}
	if end < len(input) && (input[end] == 'e' || input[end] == 'E') {
		exp := end + 1
		if exp < len(input) && (input[exp] == '+' || input[exp] == '-') {
			exp++
		}
		if exp < len(input) && input[exp] >= '0' && input[exp] <= '9' {
			end = exp
			for end < len(input) && input[end] >= '0' && input[end] <= '9' {
				end++
			}
		}
	}
	return end
}

func isLetterOrDigit(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isNameChar(r rune) bool {
	return isLetterOrDigit(r) || r == '_'
}
