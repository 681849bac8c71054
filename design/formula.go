// Package design parses model formulas and builds design matrices from
// participant tables.
package design

import (
	"fmt"
	"slices"
	"strings"
)

// Formula is a parsed model formula of the form "y ~ a + b + c".  The
// right side may contain "." for all fields other than the outcome, and
// terms preceded by "-" are removed.
type Formula struct {
	Outcome string

	// Terms in formula order, after expanding "." and removing dropped
	// terms.  Terms is nil until Expand is called if the formula uses ".".
	Terms []string

	all  bool
	drop []string
}

// Parse parses a formula.
func Parse(s string) (*Formula, error) {

	lhs, rhs, ok := strings.Cut(s, "~")
	if !ok {
		return nil, fmt.Errorf("formula '%s' has no '~'", s)
	}

	f := &Formula{Outcome: strings.TrimSpace(lhs)}
	if f.Outcome == "" {
		return nil, fmt.Errorf("formula '%s' has no outcome", s)
	}

	sign := 1
	var tok strings.Builder
	flush := func() error {
		t := strings.TrimSpace(tok.String())
		tok.Reset()
		switch {
		case t == "":
			return fmt.Errorf("formula '%s' has an empty term", s)
		case strings.ContainsAny(t, " \t~"):
			return fmt.Errorf("formula '%s' has a malformed term '%s'", s, t)
		case t == ".":
			if sign < 0 {
				return fmt.Errorf("formula '%s' cannot remove '.'", s)
			}
			f.all = true
		case t == f.Outcome:
			return fmt.Errorf("formula '%s' uses the outcome as a term", s)
		case sign < 0:
			f.drop = append(f.drop, t)
		case slices.Contains(f.Terms, t):
			return fmt.Errorf("formula '%s' repeats term '%s'", s, t)
		default:
			f.Terms = append(f.Terms, t)
		}
		return nil
	}

	for _, c := range rhs {
		switch c {
		case '+', '-':
			if err := flush(); err != nil {
				return nil, err
			}
			sign = 1
			if c == '-' {
				sign = -1
			}
		default:
			tok.WriteRune(c)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if !f.all {
		f.Terms = slices.DeleteFunc(f.Terms, func(t string) bool { return slices.Contains(f.drop, t) })
	}
	if !f.all && len(f.Terms) == 0 {
		return nil, fmt.Errorf("formula '%s' has no terms", s)
	}

	return f, nil
}

// Expand resolves "." against the given field names.  Fields already
// listed keep their position, the others follow in the given order.
func (f *Formula) Expand(names []string) *Formula {

	g := &Formula{Outcome: f.Outcome, Terms: slices.Clone(f.Terms)}
	if f.all {
		for _, na := range names {
			if na != f.Outcome && !slices.Contains(g.Terms, na) {
				g.Terms = append(g.Terms, na)
			}
		}
	}
	g.Terms = slices.DeleteFunc(g.Terms, func(t string) bool { return slices.Contains(f.drop, t) })

	return g
}

func (f *Formula) String() string {
	terms := f.Terms
	if f.all {
		terms = append([]string{"."}, terms...)
	}
	s := f.Outcome + " ~ " + strings.Join(terms, " + ")
	for _, d := range f.drop {
		s += " - " + d
	}
	return s
}
