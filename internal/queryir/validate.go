package queryir

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Validate checks that a query only names known fields and that every
// value has the column's type. All problems are reported.
func Validate(q Query) error {
	v := &validator{}
	v.query(q)
	return v.errs
}

type validator struct {
	errs error
}

func (v *validator) addf(format string, args ...any) {
	v.errs = multierr.Append(v.errs, fmt.Errorf(format, args...))
}

func (v *validator) query(q Query) {
	switch query := q.(type) {
	case nil:
		v.addf("nil query")
	case Select:
		v.sel(query)
	case *Select:
		v.sel(*query)
	default:
		v.addf("unsupported query type %T", q)
	}
}

func (v *validator) sel(s Select) {
	if s.Session == "" && s.Graph == "" {
		v.addf("select needs a session or a graph")
	}
	if s.After < 0 {
		v.addf("after must be non-negative, got %d", s.After)
	}
	if s.Limit < 0 {
		v.addf("limit must be non-negative, got %d", s.Limit)
	}
	if s.Filter != nil {
		v.predicate("filter", s.Filter)
	}
}

func (v *validator) predicate(path string, p Predicate) {
	switch pred := p.(type) {
	case Equals:
		v.equals(path, pred)
	case *Equals:
		v.equals(path, *pred)
	case Prefix:
		v.prefix(path, pred)
	case *Prefix:
		v.prefix(path, *pred)
	case And:
		v.and(path, pred)
	case *And:
		v.and(path, *pred)
	default:
		v.addf("%s: unsupported predicate type %T", path, p)
	}
}

func (v *validator) field(path string, f Field) bool {
	if !f.Valid() {
		v.addf("%s: unknown field %q", path, f)
		return false
	}
	return true
}

func (v *validator) equals(path string, eq Equals) {
	if !v.field(path, eq.Field) {
		return
	}
	switch eq.Value.(type) {
	case int, int64:
		if !eq.Field.Numeric() {
			v.addf("%s: %s compares text, got %T", path, eq.Field, eq.Value)
		}
	case string:
		if eq.Field.Numeric() {
			v.addf("%s: %s compares integers, got string", path, eq.Field)
		}
	default:
		v.addf("%s: unsupported value type %T for %s", path, eq.Value, eq.Field)
	}
}

func (v *validator) prefix(path string, p Prefix) {
	if !v.field(path, p.Field) {
		return
	}
	if p.Field.Numeric() {
		v.addf("%s: prefix needs a text field, got %s", path, p.Field)
	}
}

func (v *validator) and(path string, a And) {
	for i, sub := range a.Predicates {
		v.predicate(fmt.Sprintf("%s.and[%d]", path, i), sub)
	}
}

// Errors splits a Validate error into its messages.
func Errors(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		out = append(out, strings.TrimSpace(e.Error()))
	}
	return out
}
