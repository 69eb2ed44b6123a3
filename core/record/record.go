/*Package record provides the open record type shared by the store, the query
engine and the relationship resolver.

A record is a plain map from field name to JSON value. The declared field schema
of a resource is used for validation and defaults only, it does not type the
record itself. This keeps the query engine and the resolver resource-agnostic.
*/
package record

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Record is an open map from field name to value. Values are JSON values:
// string, float64, bool, nil, nested map or array.
type Record map[string]interface{}

// Copy returns a deep copy of the record. Stored records are never handed out
// directly, callers always receive copies so that they cannot mutate store state.
func (r Record) Copy() Record {
	if r == nil {
		return nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		// records are JSON values by construction
		panic(fmt.Sprintf("record is not serializable: %v", err))
	}
	var clone Record
	if err := json.Unmarshal(data, &clone); err != nil {
		panic(fmt.Sprintf("record is not deserializable: %v", err))
	}
	return clone
}

// CopyAll returns a deep copy of a list of records.
func CopyAll(records []Record) []Record {
	if records == nil {
		return nil
	}
	clones := make([]Record, len(records))
	for i, r := range records {
		clones[i] = r.Copy()
	}
	return clones
}

// CopySet returns a deep copy of a full collection set, keyed by resource name.
func CopySet(set map[string][]Record) map[string][]Record {
	if set == nil {
		return nil
	}
	clone := make(map[string][]Record, len(set))
	for name, records := range set {
		clone[name] = CopyAll(records)
	}
	return clone
}

// Numeric returns the value as a float64 if it is a number. JSON unmarshalling
// produces float64, but records constructed in code may carry other numeric types.
func Numeric(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// SameIdentifier compares two identifier values with the tolerance needed for
// keys that arrive as different types, "3" versus 3. Both values are trimmed
// and stringified first; if the strings differ, both are parsed as numbers as a
// fallback. The comparison is load-bearing for the ownership check, so it is an
// explicit routine and not incidental type coercion.
func SameIdentifier(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	sa := normalizeIdentifier(a)
	sb := normalizeIdentifier(b)
	if sa == sb {
		return true
	}
	fa, errA := strconv.ParseFloat(sa, 64)
	fb, errB := strconv.ParseFloat(sb, 64)
	return errA == nil && errB == nil && fa == fb
}

func normalizeIdentifier(value interface{}) string {
	if f, ok := Numeric(value); ok && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}
