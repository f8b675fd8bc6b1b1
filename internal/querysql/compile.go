package querysql

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/roach88/ixgraph/internal/queryir"
)

// Columns is the select list of every compiled query, in scan order.
const Columns = "t.session_id, t.seq, t.kind, t.node, t.op, t.socket, t.message"

// SQLCompiler compiles trace queries to parameterized SQLite.
//
// Values are always bound as parameters. Every query is ordered by
// session, then seq.
type SQLCompiler struct {
	Table    string // trace table
	Sessions string // session table, joined for graph queries
}

// NewSQLCompiler creates a compiler for the store's default tables.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: "trace_events", Sessions: "sessions"}
}

// Compile validates q and converts it to SQL and its parameters.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}
	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	}
	return "", nil, fmt.Errorf("unsupported query type: %T", q)
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var (
		b      strings.Builder
		where  []string
		params []any
	)
	fmt.Fprintf(&b, "SELECT %s FROM %s t", Columns, c.Table)

	if q.Graph != "" {
		fmt.Fprintf(&b, " INNER JOIN %s s ON s.id = t.session_id", c.Sessions)
		where = append(where, "s.graph_id = ?")
		params = append(params, q.Graph)
	}
	if q.Session != "" {
		where = append(where, "t.session_id = ?")
		params = append(params, q.Session)
	}
	if q.After > 0 {
		where = append(where, "t.seq > ?")
		params = append(params, q.After)
	}
	if q.Filter != nil {
		sql, fp, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = append(where, sql)
		params = append(params, fp...)
	}

	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY t.session_id COLLATE BINARY ASC, t.seq ASC")
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, q.Limit)
	}
	return b.String(), params, nil
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.Prefix:
		return c.compilePrefix(pred)
	case *queryir.Prefix:
		return c.compilePrefix(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	}
	return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
}

func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	return "t." + string(eq.Field) + " = ?", []any{eq.Value}, nil
}

// compilePrefix compares a leading substring. SQLite's LIKE folds ASCII
// case, which would disagree with queryir.Eval.
func (c *SQLCompiler) compilePrefix(p queryir.Prefix) (string, []any, error) {
	return "substr(t." + string(p.Field) + ", 1, ?) = ?", []any{utf8.RuneCountInString(p.Prefix), p.Prefix}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}
	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, pp, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+sql+")")
		params = append(params, pp...)
	}
	return strings.Join(parts, " AND "), params, nil
}
