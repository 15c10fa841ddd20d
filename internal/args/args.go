// Package args binds raw command text to a command's declared parameters.
//
// Parameters are declared as an ordered table of Param values. Coerce splits
// the raw argument text on whitespace and converts one token per parameter,
// except that a string parameter in the last position receives the rest of
// the input verbatim, which is how free-text arguments are expressed.
package args

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Kind is the declared type of a parameter.
type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Param declares one positional parameter. A Param with a non-nil Default is
// optional and binds the default when no token is left. Optional without a
// Default binds nothing (Values.Has reports false).
type Param struct {
	Name     string
	Kind     Kind
	Optional bool
	Default  any
}

func (p Param) optional() bool { return p.Optional || p.Default != nil }

// ArgumentError reports a parameter that could not be bound.
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Param == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

// Validate checks a parameter table for registration: names are unique and
// non-empty, defaults match the declared kind, and no required parameter
// follows an optional one.
func Validate(params []Param) error {
	seen := make(map[string]bool, len(params))
	sawOptional := false
	for i, p := range params {
		if p.Name == "" {
			return fmt.Errorf("parameter %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		if p.Default != nil && !defaultMatches(p.Kind, p.Default) {
			return fmt.Errorf("parameter %q: default %v (%T) is not a %s", p.Name, p.Default, p.Default, p.Kind)
		}
		if p.optional() {
			sawOptional = true
		} else if sawOptional {
			return fmt.Errorf("required parameter %q follows an optional parameter", p.Name)
		}
	}
	return nil
}

func defaultMatches(k Kind, v any) bool {
	switch k {
	case String:
		_, ok := v.(string)
		return ok
	case Int:
		_, ok := v.(int)
		return ok
	case Float:
		_, ok := v.(float64)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// token is a whitespace-delimited word and its byte offset in the input.
type token struct {
	text  string
	start int
}

func tokenize(s string) []token {
	var toks []token
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, token{text: s[start:i], start: start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		toks = append(toks, token{text: s[start:], start: start})
	}
	return toks
}

// Coerce binds raw to params. It has no side effects.
func Coerce(params []Param, raw string) (Values, error) {
	toks := tokenize(raw)
	vals := Values{}

	next := 0
	for i, p := range params {
		if next >= len(toks) {
			switch {
			case p.Default != nil:
				vals[p.Name] = p.Default
			case p.Optional:
			default:
				return nil, &ArgumentError{Param: p.Name, Reason: "missing required argument"}
			}
			continue
		}

		if p.Kind == String && i == len(params)-1 {
			vals[p.Name] = strings.TrimRightFunc(raw[toks[next].start:], unicode.IsSpace)
			next = len(toks)
			continue
		}

		v, err := convert(p.Kind, toks[next].text)
		if err != nil {
			return nil, &ArgumentError{Param: p.Name, Reason: err.Error()}
		}
		vals[p.Name] = v
		next++
	}

	if next < len(toks) {
		extra := make([]string, 0, len(toks)-next)
		for _, t := range toks[next:] {
			extra = append(extra, t.text)
		}
		return nil, &ArgumentError{Reason: fmt.Sprintf("unexpected arguments: %s", strings.Join(extra, " "))}
	}
	return vals, nil
}

func convert(k Kind, s string) (any, error) {
	switch k {
	case Int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("expected integer, got %q", s)
		}
		return n, nil
	case Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", s)
		}
		return f, nil
	case Bool:
		switch strings.ToLower(s) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
		return nil, fmt.Errorf("expected yes/no, got %q", s)
	default:
		return s, nil
	}
}

// Signature renders a usage string such as "<user> [sides=6] [note]".
func Signature(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		switch {
		case p.Default != nil:
			parts = append(parts, fmt.Sprintf("[%s=%v]", p.Name, p.Default))
		case p.Optional:
			parts = append(parts, fmt.Sprintf("[%s]", p.Name))
		default:
			parts = append(parts, fmt.Sprintf("<%s>", p.Name))
		}
	}
	return strings.Join(parts, " ")
}
