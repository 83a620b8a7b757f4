package repo

import (
	"fmt"
	"strconv"
	"strings"
)

const rootPrefix = "/jcr:root"

// Query is the parsed form of the small XPath subset the capability probes use:
//
//	/jcr:root/some/path                 the node at /some/path
//	/jcr:root/some/path//*              every descendant of /some/path
//	... [@name = value]                 optionally filtered on one property
//
// Values are true, false, a number, or a single- or double-quoted string.
type Query struct {
	Path        string
	Descendants bool
	Property    string
	Value       string
}

func ParseQuery(expr string) (Query, error) {
	s := strings.TrimSpace(expr)
	if !strings.HasPrefix(s, rootPrefix) {
		return Query{}, fmt.Errorf("%w: %q must start with %s", ErrInvalidQuery, expr, rootPrefix)
	}
	s = s[len(rootPrefix):]

	var q Query
	if i := strings.IndexByte(s, '['); i >= 0 {
		if !strings.HasSuffix(s, "]") {
			return Query{}, fmt.Errorf("%w: unterminated predicate in %q", ErrInvalidQuery, expr)
		}
		name, value, err := parsePredicate(s[i+1 : len(s)-1])
		if err != nil {
			return Query{}, fmt.Errorf("%w: %q: %v", ErrInvalidQuery, expr, err)
		}
		q.Property, q.Value = name, value
		s = strings.TrimSpace(s[:i])
	}

	if strings.HasSuffix(s, "//*") {
		q.Descendants = true
		s = strings.TrimSuffix(s, "//*")
	}

	path, err := cleanPath(s)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %q: %v", ErrInvalidQuery, expr, err)
	}
	q.Path = path
	return q, nil
}

func cleanPath(s string) (string, error) {
	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return "/", nil
	}
	if s[0] != '/' {
		return "", fmt.Errorf("path %q is not absolute", s)
	}
	for _, seg := range strings.Split(s[1:], "/") {
		if seg == "" {
			return "", fmt.Errorf("empty path segment in %q", s)
		}
		if strings.ContainsAny(seg, "*@[]= \t") {
			return "", fmt.Errorf("unsupported path segment %q", seg)
		}
	}
	return s, nil
}

func parsePredicate(p string) (name, value string, err error) {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "@") {
		return "", "", fmt.Errorf("predicate %q must be @name = value", p)
	}
	lhs, rhs, ok := strings.Cut(p[1:], "=")
	if !ok {
		return "", "", fmt.Errorf("predicate %q has no comparison", p)
	}
	name = strings.TrimSpace(lhs)
	if name == "" || strings.ContainsAny(name, " \t'\"[]") {
		return "", "", fmt.Errorf("bad property name %q", name)
	}
	rhs = strings.TrimSpace(rhs)
	switch {
	case len(rhs) >= 2 && (rhs[0] == '\'' || rhs[0] == '"') && rhs[len(rhs)-1] == rhs[0]:
		value = rhs[1 : len(rhs)-1]
	case rhs == "true" || rhs == "false":
		value = rhs
	default:
		if _, perr := strconv.ParseFloat(rhs, 64); perr != nil {
			return "", "", fmt.Errorf("bad literal %q", rhs)
		}
		value = rhs
	}
	return name, value, nil
}

// Matches reports whether the node at path with the given properties is selected.
func (q Query) Matches(path string, props map[string]string) bool {
	if q.Descendants {
		if path == q.Path || !strings.HasPrefix(path, q.descendantPrefix()) {
			return false
		}
	} else if path != q.Path {
		return false
	}
	if q.Property == "" {
		return true
	}
	v, ok := props[q.Property]
	return ok && v == q.Value
}

func (q Query) descendantPrefix() string {
	if q.Path == "/" {
		return "/"
	}
	return q.Path + "/"
}

// SQL renders the query against the nodes/properties schema shared by the
// SQL adapters. ph returns the placeholder for the n-th (1-based) argument.
func (q Query) SQL(ph func(n int) string) (string, []any) {
	var b strings.Builder
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return ph(len(args))
	}

	b.WriteString("SELECT n.path FROM nodes n WHERE ")
	if q.Descendants {
		b.WriteString("n.path LIKE " + arg(escapeLike(q.descendantPrefix())+"%") + ` ESCAPE '\'`)
		b.WriteString(" AND n.path <> " + arg(q.Path))
	} else {
		b.WriteString("n.path = " + arg(q.Path))
	}
	if q.Property != "" {
		b.WriteString(" AND EXISTS (SELECT 1 FROM properties p WHERE p.path = n.path AND p.name = ")
		b.WriteString(arg(q.Property))
		b.WriteString(" AND p.value = ")
		b.WriteString(arg(q.Value))
		b.WriteString(")")
	}
	b.WriteString(" ORDER BY n.path")
	return b.String(), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(rootPrefix)
	if q.Path != "/" {
		b.WriteString(q.Path)
	}
	if q.Descendants {
		b.WriteString("//*")
	}
	if q.Property != "" {
		fmt.Fprintf(&b, " [@%s = '%s']", q.Property, q.Value)
	}
	return b.String()
}
