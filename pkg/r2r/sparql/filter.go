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
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"github.com/numaproj/numaflow-rsp/pkg/r2r"
	"github.com/numaproj/numaflow-rsp/pkg/rdf"
)

// filter is a FILTER constraint compiled to an expr program. Variables are exposed to the program
// as v_<name>, their values are float64 for numeric literals, bool for booleans and strings otherwise.
type filter struct {
	source  string
	program *vm.Program
}

func compileFilter(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to compile filter '%s': %s", ErrSyntax, expression, err)
	}
	return program, nil
}

// matches reports the effective boolean value of the filter, evaluation errors eliminate the solution.
func (f *filter) matches(b r2r.Binding) bool {
	env := make(map[string]interface{}, len(funcMap)+len(b))
	for name, fn := range funcMap {
		env[name] = fn
	}
	for name, term := range b {
		env[varIdent(name)] = termValue(term)
	}
	result, err := expr.Run(f.program, env)
	if err != nil {
		return false
	}
	switch v := result.(type) {
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	default:
		return false
	}
}

// parseFilter parses FILTER(expression) or FILTER fn(args) and translates it to expr syntax.
func (p *parser) parseFilter() (*filter, error) {
	start := p.pos
	if p.peek().kind == tokIdent {
		p.next()
	}
	if !p.peek().is("(") {
		return nil, fmt.Errorf("%w: expected filter expression, found %s", ErrSyntax, p.peek())
	}
	depth := 0
	var parts []string
	var source []string
	for i := start; ; i++ {
		if i >= len(p.tokens) || p.tokens[i].kind == tokEOF {
			return nil, fmt.Errorf("%w: unterminated filter", ErrSyntax)
		}
		t := p.tokens[i]
		source = append(source, t.value)
		switch {
		case t.is("("):
			depth++
		case t.is(")"):
			depth--
		}
		part, skip, err := p.translate(i)
		if err != nil {
			return nil, err
		}
		if part != "" {
			parts = append(parts, part)
		}
		i += skip
		if depth == 0 && t.is(")") {
			p.pos = i + 1
			break
		}
	}
	return p.filters(strings.Join(source, " "), strings.Join(parts, " "))
}

// translate converts the token at i, skip is the number of following tokens it consumed.
func (p *parser) translate(i int) (string, int, error) {
	t := p.tokens[i]
	switch t.kind {
	case tokVar:
		return varIdent(t.value), 0, nil
	case tokIRI:
		return strconv.Quote(t.value), 0, nil
	case tokPName:
		iri, err := p.expand(t)
		if err != nil {
			return "", 0, err
		}
		return strconv.Quote(iri), 0, nil
	case tokString:
		next := p.tokens[i+1]
		if next.kind == tokLang {
			return strconv.Quote(t.value), 1, nil
		}
		if next.is("^^") {
			dt := rdf.NewTypedLiteral(t.value, p.datatypeAt(i+2))
			if _, err := strconv.ParseFloat(t.value, 64); err == nil && dt.IsNumeric() {
				return t.value, 2, nil
			}
			return strconv.Quote(t.value), 2, nil
		}
		return strconv.Quote(t.value), 0, nil
	case tokNumber:
		return t.value, 0, nil
	case tokIdent:
		return strings.ToLower(t.value), 0, nil
	case tokOp:
		if t.value == "=" {
			return "==", 0, nil
		}
		return t.value, 0, nil
	case tokPunct:
		switch t.value {
		case "(", ")", ",", "*":
			return t.value, 0, nil
		}
	}
	return "", 0, fmt.Errorf("%w: unexpected %s in filter", ErrSyntax, t)
}

func (p *parser) datatypeAt(i int) string {
	if i >= len(p.tokens) {
		return ""
	}
	t := p.tokens[i]
	switch t.kind {
	case tokIRI:
		return t.value
	case tokPName:
		iri, _ := p.expand(t)
		return iri
	default:
		return ""
	}
}

func varIdent(name string) string {
	if strings.HasPrefix(name, "_:") {
		return "b_" + name[2:]
	}
	return "v_" + name
}

func termValue(t rdf.Term) interface{} {
	switch {
	case t.IsNumeric():
		if f, err := strconv.ParseFloat(t.Value, 64); err == nil {
			return f
		}
		return t.Value
	case t.IsLiteral() && t.Datatype == rdf.XSDBoolean:
		return t.Value == "true" || t.Value == "1"
	case t.Kind == rdf.BlankNodeKind:
		return "_:" + t.Value
	default:
		return t.Value
	}
}

var funcMap = map[string]interface{}{
	"regex":     _regex,
	"str":       _str,
	"strlen":    _strlen,
	"ucase":     _ucase,
	"lcase":     _lcase,
	"contains":  _contains,
	"strstarts": _strstarts,
	"strends":   _strends,
	"abs":       _abs,
}

func _str(v interface{}) string {
	switch w := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(w, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func _regex(args ...interface{}) bool {
	if len(args) < 2 || len(args) > 3 {
		panic(fmt.Errorf("regex expects 2 or 3 arguments, got %d", len(args)))
	}
	pattern := _str(args[1])
	if len(args) == 3 && strings.Contains(_str(args[2]), "i") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		panic(fmt.Errorf("invalid regex %q: %w", pattern, err))
	}
	return re.MatchString(_str(args[0]))
}

func _strlen(v interface{}) int {
	return len([]rune(_str(v)))
}

func _ucase(v interface{}) string {
	return strings.ToUpper(_str(v))
}

func _lcase(v interface{}) string {
	return strings.ToLower(_str(v))
}

func _contains(s, sub interface{}) bool {
	return strings.Contains(_str(s), _str(sub))
}

func _strstarts(s, prefix interface{}) bool {
	return strings.HasPrefix(_str(s), _str(prefix))
}

func _strends(s, suffix interface{}) bool {
	return strings.HasSuffix(_str(s), _str(suffix))
}

func _abs(v interface{}) float64 {
	switch w := v.(type) {
	case float64:
		return math.Abs(w)
	case int:
		return math.Abs(float64(w))
	default:
		panic(fmt.Errorf("abs expects a number, got %v", v))
	}
}
