package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Direction of an ORDER BY clause.
type Direction int

const (
	Asc Direction = iota
	Desc
)

type (
	// Filter is an equality condition on a top-level field.
	Filter struct {
		Field string
		Value any
	}

	// Order sorts results by a top-level field.
	Order struct {
		Field string
		Dir   Direction
	}

	// Query selects documents of one collection.
	Query struct {
		Collection string
		Where      []Filter
		OrderBy    []Order
	}
)

// From starts a query on collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

// WhereEq adds an equality filter.
func (q Query) WhereEq(field string, value any) Query {
	q.Where = append(append([]Filter(nil), q.Where...), Filter{Field: field, Value: value})
	return q
}

// Order adds a sort clause.
func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), Order{Field: field, Dir: dir})
	return q
}

// Fields lists the distinct fields referenced by filters and orders, in order.
func (q Query) Fields() []string {
	seen := map[string]bool{}
	var out []string
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	for _, f := range q.Where {
		add(f.Field)
	}
	for _, o := range q.OrderBy {
		add(o.Field)
	}
	return out
}

// NeedsCompositeIndex reports whether the query sorts while touching more
// than one field, which the managed backend only serves from a declared index.
func (q Query) NeedsCompositeIndex() bool {
	return len(q.OrderBy) > 0 && len(q.Fields()) > 1
}

// IndexKey identifies the index that serves q.
func (q Query) IndexKey() string {
	return CollectionID(q.Collection) + "(" + strings.Join(q.Fields(), ",") + ")"
}

func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Collection)
	for _, f := range q.Where {
		fmt.Fprintf(&b, " where %s==%v", f.Field, f.Value)
	}
	for _, o := range q.OrderBy {
		dir := "asc"
		if o.Dir == Desc {
			dir = "desc"
		}
		fmt.Fprintf(&b, " order by %s %s", o.Field, dir)
	}
	return b.String()
}

// Matches reports whether data satisfies every filter.
func (q Query) Matches(data Data) bool {
	for _, f := range q.Where {
		if CompareValues(data[f.Field], NormalizeValue(f.Value)) != 0 {
			return false
		}
	}
	return true
}

// Sort orders snapshots by the query's clauses. The sort is stable, so ties
// keep the order they were given in.
func (q Query) Sort(snaps []Snapshot) {
	if len(q.OrderBy) == 0 {
		return
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := CompareValues(snaps[i].Data[o.Field], snaps[j].Data[o.Field])
			if c == 0 {
				continue
			}
			if o.Dir == Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// NormalizeValue maps Go values onto the JSON-compatible types stored in documents.
func NormalizeValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return FormatTimestamp(t)
	}
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return v
	}
}

// CompareValues orders values: nil < bool < number < string. Values of other
// types compare by their printed form.
func CompareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case nil:
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(x, b.(string))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
