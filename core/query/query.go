/*Package query implements the pure transforms applied to record lists:
filter, sort, paginate, project — always in that order. Filtering happens
before pagination so that page counts reflect the filtered set.
*/
package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/mockfold/mockfold/core"
	"github.com/mockfold/mockfold/core/record"
)

// Operator is the closed set of filter operators
type Operator string

// all supported filter operators
const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpIn         Operator = "in"
	OpNin        Operator = "nin"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operator(s)
	switch *o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNin, OpContains, OpStartsWith, OpEndsWith:
		return nil
	default:
		return fmt.Errorf("%s is not a valid Operator", s)
	}
}

// Filter is a single predicate on one field. A record must satisfy all filters
// of a query, there is no OR.
type Filter struct {
	Field         string      `json:"field"`
	Operator      Operator    `json:"operator"`
	Value         interface{} `json:"value"`
	CaseSensitive bool        `json:"caseSensitive"`
}

// UnmarshalJSON is a custom JSON unmarshaller; caseSensitive defaults to true
func (f *Filter) UnmarshalJSON(data []byte) error {
	type alias Filter
	aux := alias{CaseSensitive: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = Filter(aux)
	return nil
}

// Order is the sort direction, ascending or descending
type Order string

// the two sort directions; an empty order means ascending
const (
	Ascending  Order = "asc"
	Descending Order = "desc"
)

// SortKey is one key of a multi-key sort
type SortKey struct {
	Field string `json:"field"`
	Order Order  `json:"order,omitempty"`
}

// Options is the full set of query options of a list request. All fields are
// optional, absence means no constraint.
type Options struct {
	Filters []Filter  `json:"filters,omitempty"`
	Sort    []SortKey `json:"sort,omitempty"`
	Page    int       `json:"page,omitempty"`
	PerPage int       `json:"perPage,omitempty"`
	Fields  []string  `json:"fields,omitempty"`
	Expand  []string  `json:"expand,omitempty"`
}

// Matches reports whether the record satisfies the filter.
//
// A missing or null field value satisfies ne and nin, never eq, in, the
// numeric comparisons or the string operators. The numeric comparisons only
// succeed when both operands are numbers. With caseSensitive false, both
// operands of a string comparison are folded first.
func Matches(rec record.Record, f Filter) (bool, error) {
	value, ok := rec[f.Field]
	if value == nil {
		ok = false
	}

	switch f.Operator {
	case OpEq:
		return ok && equalValues(value, f.Value, f.CaseSensitive), nil
	case OpNe:
		return !ok || !equalValues(value, f.Value, f.CaseSensitive), nil
	case OpGt, OpGte, OpLt, OpLte:
		if !ok {
			return false, nil
		}
		a, okA := record.Numeric(value)
		b, okB := record.Numeric(f.Value)
		if !okA || !okB {
			return false, nil
		}
		switch f.Operator {
		case OpGt:
			return a > b, nil
		case OpGte:
			return a >= b, nil
		case OpLt:
			return a < b, nil
		default:
			return a <= b, nil
		}
	case OpIn, OpNin:
		set, okSet := valueSet(f.Value)
		if !okSet {
			return false, fmt.Errorf("%w: operator %s needs a list value", core.ErrValidation, f.Operator)
		}
		if !ok {
			return f.Operator == OpNin, nil
		}
		found := false
		for _, candidate := range set {
			if equalValues(value, candidate, f.CaseSensitive) {
				found = true
				break
			}
		}
		if f.Operator == OpIn {
			return found, nil
		}
		return !found, nil
	case OpContains, OpStartsWith, OpEndsWith:
		if !ok {
			return false, nil
		}
		s, okS := value.(string)
		operand, okO := f.Value.(string)
		if !okS || !okO {
			return false, nil
		}
		if !f.CaseSensitive {
			s = strings.ToLower(s)
			operand = strings.ToLower(operand)
		}
		switch f.Operator {
		case OpContains:
			return strings.Contains(s, operand), nil
		case OpStartsWith:
			return strings.HasPrefix(s, operand), nil
		default:
			return strings.HasSuffix(s, operand), nil
		}
	default:
		return false, fmt.Errorf("%w: %s is not a valid Operator", core.ErrValidation, f.Operator)
	}
}

// FilterRecords returns the records that satisfy all filters
func FilterRecords(records []record.Record, filters []Filter) ([]record.Record, error) {
	if len(filters) == 0 {
		return records, nil
	}
	var out []record.Record
	for _, rec := range records {
		keep := true
		for _, f := range filters {
			ok, err := Matches(rec, f)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SortRecords sorts records in place by the given keys. The sort is stable:
// records tied on all keys keep their original relative order. A record with a
// null or missing sort key value sorts as the lowest value for an ascending
// key and as the highest value for a descending key, so nulls always group at
// the extreme end given by the direction.
func SortRecords(records []record.Record, keys []SortKey) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		if key.Field == "" {
			return fmt.Errorf("%w: sort key without field", core.ErrValidation)
		}
		if key.Order != "" && key.Order != Ascending && key.Order != Descending {
			return fmt.Errorf("%w: sort order must be asc or desc", core.ErrValidation)
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range keys {
			a, b := records[i][key.Field], records[j][key.Field]
			if a == nil && b == nil {
				continue
			}
			if a == nil {
				return true
			}
			if b == nil {
				return false
			}
			c := compareValues(a, b)
			if key.Order == Descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return nil
}

// Page returns the 1-indexed page window. Pages beyond the available range
// yield an empty slice, never an error.
func Page(records []record.Record, page, perPage int) []record.Record {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * perPage
	if offset >= len(records) {
		return []record.Record{}
	}
	end := offset + perPage
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// Project reduces each record to the allow-listed fields. The primary key is
// not added implicitly; callers who need it must list it.
func Project(records []record.Record, fields []string) []record.Record {
	if len(fields) == 0 {
		return records
	}
	out := make([]record.Record, len(records))
	for i, rec := range records {
		projected := record.Record{}
		for _, field := range fields {
			if value, ok := rec[field]; ok {
				projected[field] = value
			}
		}
		out[i] = projected
	}
	return out
}

// Apply runs the full pipeline filter, sort, paginate, project over the
// records. defaultPerPage is the page size used when the options do not carry
// one; a defaultPerPage of zero disables pagination unless the options request
// it explicitly. The input slice is not modified.
func Apply(records []record.Record, opt Options, defaultPerPage int) ([]record.Record, error) {
	if opt.Page < 0 || opt.PerPage < 0 {
		return nil, fmt.Errorf("%w: page and perPage must be positive", core.ErrValidation)
	}

	out, err := FilterRecords(records, opt.Filters)
	if err != nil {
		return nil, err
	}
	// sort on a private slice, the caller's order must not change
	out = append([]record.Record{}, out...)
	if err := SortRecords(out, opt.Sort); err != nil {
		return nil, err
	}

	perPage := opt.PerPage
	if perPage == 0 {
		perPage = defaultPerPage
	}
	if perPage > 0 {
		out = Page(out, opt.Page, perPage)
	}

	return Project(out, opt.Fields), nil
}

// equalValues is the equality used by eq, ne, in and nin: numbers compare
// numerically, strings compare with optional case folding, everything else
// compares deeply.
func equalValues(a, b interface{}, caseSensitive bool) bool {
	if fa, okA := record.Numeric(a); okA {
		fb, okB := record.Numeric(b)
		return okB && fa == fb
	}
	if sa, okA := a.(string); okA {
		sb, okB := b.(string)
		if !okB {
			return false
		}
		if !caseSensitive {
			return strings.EqualFold(sa, sb)
		}
		return sa == sb
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two non-null values: numbers numerically, strings
// lexicographically, booleans with false first. Mixed or unknown types fall
// back to their string representation.
func compareValues(a, b interface{}) int {
	if fa, okA := record.Numeric(a); okA {
		if fb, okB := record.Numeric(b); okB {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			default:
				return 0
			}
		}
	}
	if sa, okA := a.(string); okA {
		if sb, okB := b.(string); okB {
			return strings.Compare(sa, sb)
		}
	}
	if ba, okA := a.(bool); okA {
		if bb, okB := b.(bool); okB {
			switch {
			case !ba && bb:
				return -1
			case ba && !bb:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func valueSet(value interface{}) ([]interface{}, bool) {
	if value == nil {
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	set := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		set[i] = rv.Index(i).Interface()
	}
	return set, true
}
