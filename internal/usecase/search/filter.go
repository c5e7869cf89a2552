// Package search parses run filter expressions and evaluates them against runs.
//
// A filter is a list of comparisons joined by AND:
//
//	metrics.loss < 0.3 and params.optim = 'adam' and attributes.status = "FINISHED"
//
// Identifiers are params.<key>, metrics.<key>, tags.<key> and
// attributes.<name> (a bare name is read as an attribute). Keys with
// characters outside [A-Za-z0-9_.-/] can be back-quoted: params.`batch size`.
package search

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/tinytrack/ttrack/internal/domain"
)

type Entity string

const (
	EntityParam     Entity = "params"
	EntityMetric    Entity = "metrics"
	EntityTag       Entity = "tags"
	EntityAttribute Entity = "attributes"
)

type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// Clause is a single comparison.
type Clause struct {
	Entity Entity
	Key    string
	Op     Op
	Value  string
	Number float64
	Quoted bool
}

// Filter is a conjunction of clauses. The zero Filter matches every run.
type Filter struct {
	Clauses []Clause
}

var attributes = map[string]bool{
	"run_id":          true,
	"run_name":        true,
	"status":          true,
	"user_id":         true,
	"start_time":      true,
	"end_time":        true,
	"lifecycle_stage": true,
}

var numericAttributes = map[string]bool{"start_time": true, "end_time": true}

func ParseFilter(s string) (Filter, error) {
	toks, err := lex(s)
	if err != nil {
		return Filter{}, err
	}
	if len(toks) == 0 {
		return Filter{}, nil
	}

	var f Filter
	for i := 0; i < len(toks); {
		if len(toks)-i < 3 {
			return Filter{}, filterErr(s, "incomplete comparison near %q", toks[i].text)
		}
		c, err := parseClause(toks[i], toks[i+1], toks[i+2])
		if err != nil {
			return Filter{}, filterErr(s, "%v", err)
		}
		f.Clauses = append(f.Clauses, c)
		i += 3

		if i == len(toks) {
			break
		}
		if toks[i].kind != tokIdent || !strings.EqualFold(toks[i].text, "and") {
			return Filter{}, filterErr(s, "expected AND, got %q", toks[i].text)
		}
		i++
		if i == len(toks) {
			return Filter{}, filterErr(s, "dangling AND")
		}
	}
	return f, nil
}

func parseClause(id, op, val token) (Clause, error) {
	if id.kind != tokIdent {
		return Clause{}, fmt.Errorf("expected identifier, got %q", id.text)
	}
	entity, key, err := parseIdent(id.text)
	if err != nil {
		return Clause{}, err
	}
	if op.kind != tokOp {
		return Clause{}, fmt.Errorf("expected comparison operator after %q, got %q", id.text, op.text)
	}

	c := Clause{Entity: entity, Key: key, Op: Op(op.text)}
	switch val.kind {
	case tokString, tokIdent:
		c.Value, c.Quoted = val.text, true
	case tokNumber:
		n, err := domain.ParseFloat(val.text)
		if err != nil {
			return Clause{}, fmt.Errorf("invalid number %q", val.text)
		}
		c.Value, c.Number = val.text, n
	default:
		return Clause{}, fmt.Errorf("expected value after %s %s, got %q", id.text, op.text, val.text)
	}

	switch {
	case entity == EntityMetric && c.Quoted:
		return Clause{}, fmt.Errorf("metric %q must be compared with a number", key)
	case entity == EntityAttribute && numericAttributes[key] && c.Quoted:
		return Clause{}, fmt.Errorf("attribute %q must be compared with a number", key)
	case entity == EntityAttribute && !numericAttributes[key] && c.Op != OpEq && c.Op != OpNe:
		return Clause{}, fmt.Errorf("attribute %q only supports = and !=", key)
	case entity == EntityAttribute && key == "status":
		st, err := domain.ParseRunStatus(c.Value)
		if err != nil {
			return Clause{}, err
		}
		c.Value = st.String()
	}
	return c, nil
}

func parseIdent(s string) (Entity, string, error) {
	prefix, rest, ok := strings.Cut(s, ".")
	if !ok {
		prefix, rest = "attributes", s
	}
	rest = strings.Trim(rest, "`")
	if rest == "" {
		return "", "", fmt.Errorf("missing key in %q", s)
	}

	switch strings.ToLower(prefix) {
	case "params", "param", "parameter", "parameters":
		return EntityParam, rest, nil
	case "metrics", "metric":
		return EntityMetric, rest, nil
	case "tags", "tag":
		return EntityTag, rest, nil
	case "attributes", "attribute", "attr", "run":
		if !attributes[rest] {
			return "", "", fmt.Errorf("unknown attribute %q", rest)
		}
		return EntityAttribute, rest, nil
	default:
		if !ok {
			return "", "", fmt.Errorf("unknown attribute %q", s)
		}
		return "", "", fmt.Errorf("unknown entity %q (want params, metrics, tags or attributes)", prefix)
	}
}

// Match reports whether run satisfies every clause. A clause naming a key the
// run does not have never matches.
func (f Filter) Match(run domain.Run) bool {
	for _, c := range f.Clauses {
		if !c.Match(run) {
			return false
		}
	}
	return true
}

func (c Clause) Match(run domain.Run) bool {
	switch c.Entity {
	case EntityMetric:
		m, ok := run.Metrics[c.Key]
		if !ok {
			return false
		}
		return compareFloat(m.Value, c.Op, c.Number)
	case EntityParam:
		v, ok := run.Params[c.Key]
		if !ok {
			return false
		}
		return c.compareString(v)
	case EntityTag:
		v, ok := run.Tags[c.Key]
		if !ok {
			return false
		}
		return c.compareString(v)
	case EntityAttribute:
		if numericAttributes[c.Key] {
			t := run.Info.StartTime
			if c.Key == "end_time" {
				t = run.Info.EndTime
			}
			if t.IsZero() {
				return false
			}
			return compareFloat(float64(t.UnixMilli()), c.Op, c.Number)
		}
		return c.compareString(attributeString(run.Info, c.Key))
	}
	return false
}

// compareString compares numerically when both sides parse as numbers and
// the filter value was not quoted.
func (c Clause) compareString(v string) bool {
	if !c.Quoted {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return compareFloat(n, c.Op, c.Number)
		}
	}
	cmp := strings.Compare(v, c.Value)
	switch c.Op {
	case OpEq:
		return cmp == 0
	case OpNe:
		return cmp != 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

func compareFloat(a float64, op Op, b float64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}

func attributeString(info domain.RunInfo, name string) string {
	switch name {
	case "run_id":
		return info.RunID
	case "run_name":
		return info.RunName
	case "status":
		return info.Status.String()
	case "user_id":
		return info.UserID
	case "lifecycle_stage":
		return string(info.LifecycleStage)
	}
	return ""
}

func filterErr(expr, format string, args ...any) error {
	return &domain.OpError{
		Op:   "search.parse_filter",
		Kind: domain.KindInvalidArgument,
		Err:  fmt.Errorf("filter %q: %s", expr, fmt.Sprintf(format, args...)),
	}
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokOp
	tokString
	tokNumber
)

type token struct {
	kind tokKind
	text string
}

func lex(s string) ([]token, error) {
	var out []token
	r := []rune(s)

	for i := 0; i < len(r); {
		ch := r[i]
		switch {
		case unicode.IsSpace(ch):
			i++

		case ch == '\'' || ch == '"':
			j := i + 1
			var sb strings.Builder
			for j < len(r) && r[j] != ch {
				sb.WriteRune(r[j])
				j++
			}
			if j == len(r) {
				return nil, filterErr(s, "unterminated string")
			}
			out = append(out, token{kind: tokString, text: sb.String()})
			i = j + 1

		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			j := i + 1
			if j < len(r) && r[j] == '=' {
				j++
			}
			op := string(r[i:j])
			if op == "!" {
				return nil, filterErr(s, "unexpected '!'")
			}
			if op == "==" {
				op = "="
			}
			out = append(out, token{kind: tokOp, text: op})
			i = j

		case ch == '-' || ch == '+' || ch == '.' || unicode.IsDigit(ch):
			j := i + 1
			for j < len(r) && !unicode.IsSpace(r[j]) && !strings.ContainsRune("=!<>", r[j]) {
				j++
			}
			out = append(out, token{kind: tokNumber, text: string(r[i:j])})
			i = j

		case unicode.IsLetter(ch) || ch == '_' || ch == '`':
			j := i
			inQuote := false
			for j < len(r) {
				c := r[j]
				if c == '`' {
					inQuote = !inQuote
					j++
					continue
				}
				if !inQuote && (unicode.IsSpace(c) || strings.ContainsRune("=!<>'\"", c)) {
					break
				}
				j++
			}
			if inQuote {
				return nil, filterErr(s, "unterminated back-quoted key")
			}
			out = append(out, token{kind: tokIdent, text: strings.ReplaceAll(string(r[i:j]), "`", "")})
			i = j

		default:
			return nil, filterErr(s, "unexpected character %q", ch)
		}
	}
	return out, nil
}
