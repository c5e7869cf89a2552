package search

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tinytrack/ttrack/internal/domain"
)

// Order sorts runs by one field. Runs missing the field sort last in either direction.
type Order struct {
	Entity Entity
	Key    string
	Desc   bool
}

// DefaultOrder lists the newest runs first.
var DefaultOrder = Order{Entity: EntityAttribute, Key: "start_time", Desc: true}

// ParseOrderBy reads "metrics.loss", "params.lr DESC", "start_time asc".
func ParseOrderBy(s string) (Order, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return DefaultOrder, nil
	}
	if len(fields) > 2 {
		return Order{}, orderErr(s, "expected <field> [ASC|DESC]")
	}

	entity, key, err := parseIdent(strings.ReplaceAll(fields[0], "`", ""))
	if err != nil {
		return Order{}, orderErr(s, "%v", err)
	}
	o := Order{Entity: entity, Key: key}
	if len(fields) == 2 {
		switch strings.ToUpper(fields[1]) {
		case "ASC":
		case "DESC":
			o.Desc = true
		default:
			return Order{}, orderErr(s, "unknown direction %q", fields[1])
		}
	}
	return o, nil
}

// Sort orders runs in place. Ties fall back to start time (newest first), then run id.
func Sort(runs []domain.Run, o Order) {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		if c := o.compare(a, b); c != 0 {
			return c < 0
		}
		if c := DefaultOrder.compare(a, b); c != 0 {
			return c < 0
		}
		return a.Info.RunID < b.Info.RunID
	})
}

// compare returns <0 when a sorts before b.
func (o Order) compare(a, b domain.Run) int {
	av, aok := o.sortValue(a)
	bv, bok := o.sortValue(b)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}

	c := av.compare(bv)
	if o.Desc {
		c = -c
	}
	return c
}

type sortValue struct {
	num     float64
	str     string
	numeric bool
}

func (v sortValue) compare(o sortValue) int {
	if v.numeric && o.numeric {
		switch {
		case v.num < o.num:
			return -1
		case v.num > o.num:
			return 1
		}
		return 0
	}
	return strings.Compare(v.str, o.str)
}

func (o Order) sortValue(run domain.Run) (sortValue, bool) {
	switch o.Entity {
	case EntityMetric:
		m, ok := run.Metrics[o.Key]
		if !ok {
			return sortValue{}, false
		}
		return sortValue{num: m.Value, numeric: true}, true
	case EntityParam:
		v, ok := run.Params[o.Key]
		return stringValue(v), ok
	case EntityTag:
		v, ok := run.Tags[o.Key]
		return stringValue(v), ok
	case EntityAttribute:
		if numericAttributes[o.Key] {
			t := run.Info.StartTime
			if o.Key == "end_time" {
				t = run.Info.EndTime
			}
			if t.IsZero() {
				return sortValue{}, false
			}
			return sortValue{num: float64(t.UnixMilli()), numeric: true}, true
		}
		return stringValue(attributeString(run.Info, o.Key)), true
	}
	return sortValue{}, false
}

func stringValue(s string) sortValue {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return sortValue{num: n, str: s, numeric: true}
	}
	return sortValue{str: s}
}

func orderErr(expr, format string, args ...any) error {
	return &domain.OpError{
		Op:   "search.parse_order_by",
		Kind: domain.KindInvalidArgument,
		Err:  fmt.Errorf("order by %q: %s", expr, fmt.Sprintf(format, args...)),
	}
}
