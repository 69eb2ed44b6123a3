package query

import (
	"errors"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"

	"github.com/mockfold/mockfold/core"
	"github.com/mockfold/mockfold/core/record"
)

func TestMatches_OperatorTable(t *testing.T) {

	rec := record.Record{
		"id":    float64(3),
		"title": "Hello World",
		"views": float64(10),
		"draft": nil,
	}

	cases := []struct {
		name     string
		filter   Filter
		expected bool
	}{
		{"eq number", Filter{Field: "id", Operator: OpEq, Value: 3, CaseSensitive: true}, true},
		{"eq number string operand", Filter{Field: "id", Operator: OpEq, Value: "3", CaseSensitive: true}, false},
		{"eq string", Filter{Field: "title", Operator: OpEq, Value: "Hello World", CaseSensitive: true}, true},
		{"eq string folded", Filter{Field: "title", Operator: OpEq, Value: "hello world"}, true},
		{"eq string wrong case", Filter{Field: "title", Operator: OpEq, Value: "hello world", CaseSensitive: true}, false},
		{"eq missing field", Filter{Field: "ghost", Operator: OpEq, Value: nil, CaseSensitive: true}, false},
		{"eq null field", Filter{Field: "draft", Operator: OpEq, Value: nil, CaseSensitive: true}, false},
		{"ne missing field", Filter{Field: "ghost", Operator: OpNe, Value: "anything", CaseSensitive: true}, true},
		{"ne null field", Filter{Field: "draft", Operator: OpNe, Value: false, CaseSensitive: true}, true},
		{"ne equal value", Filter{Field: "id", Operator: OpNe, Value: float64(3), CaseSensitive: true}, false},
		{"gt", Filter{Field: "views", Operator: OpGt, Value: 5, CaseSensitive: true}, true},
		{"gt equal", Filter{Field: "views", Operator: OpGt, Value: 10, CaseSensitive: true}, false},
		{"gte equal", Filter{Field: "views", Operator: OpGte, Value: 10, CaseSensitive: true}, true},
		{"lt", Filter{Field: "views", Operator: OpLt, Value: 11, CaseSensitive: true}, true},
		{"lte", Filter{Field: "views", Operator: OpLte, Value: 10, CaseSensitive: true}, true},
		{"gt non-numeric field", Filter{Field: "title", Operator: OpGt, Value: 5, CaseSensitive: true}, false},
		{"gt non-numeric operand", Filter{Field: "views", Operator: OpGt, Value: "5", CaseSensitive: true}, false},
		{"gt missing field", Filter{Field: "ghost", Operator: OpGt, Value: 5, CaseSensitive: true}, false},
		{"in", Filter{Field: "id", Operator: OpIn, Value: []interface{}{float64(1), float64(3)}, CaseSensitive: true}, true},
		{"in miss", Filter{Field: "id", Operator: OpIn, Value: []interface{}{float64(1), float64(2)}, CaseSensitive: true}, false},
		{"in missing field", Filter{Field: "ghost", Operator: OpIn, Value: []interface{}{float64(1)}, CaseSensitive: true}, false},
		{"nin", Filter{Field: "id", Operator: OpNin, Value: []interface{}{float64(1), float64(2)}, CaseSensitive: true}, true},
		{"nin hit", Filter{Field: "id", Operator: OpNin, Value: []interface{}{float64(3)}, CaseSensitive: true}, false},
		{"nin missing field", Filter{Field: "ghost", Operator: OpNin, Value: []interface{}{float64(1)}, CaseSensitive: true}, true},
		{"contains", Filter{Field: "title", Operator: OpContains, Value: "lo Wo", CaseSensitive: true}, true},
		{"contains folded", Filter{Field: "title", Operator: OpContains, Value: "LO wO"}, true},
		{"contains wrong case", Filter{Field: "title", Operator: OpContains, Value: "hello", CaseSensitive: true}, false},
		{"startsWith", Filter{Field: "title", Operator: OpStartsWith, Value: "Hello", CaseSensitive: true}, true},
		{"endsWith", Filter{Field: "title", Operator: OpEndsWith, Value: "World", CaseSensitive: true}, true},
		{"string op on number", Filter{Field: "views", Operator: OpContains, Value: "1", CaseSensitive: true}, false},
		{"string op on missing field", Filter{Field: "ghost", Operator: OpContains, Value: "x", CaseSensitive: true}, false},
	}

	for _, c := range cases {
		ok, err := Matches(rec, c.filter)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if ok != c.expected {
			t.Fatalf("%s: expected %v", c.name, c.expected)
		}
	}
}

func TestMatches_MalformedFilter(t *testing.T) {

	rec := record.Record{"id": float64(1)}

	_, err := Matches(rec, Filter{Field: "id", Operator: OpIn, Value: "not-a-list"})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatal("in with scalar value must be a validation error")
	}

	_, err = Matches(rec, Filter{Field: "id", Operator: Operator("like"), Value: "x"})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatal("unknown operator must be a validation error")
	}
}

func TestFilter_JSON_Unmarshalling(t *testing.T) {

	var f Filter
	err := json.Unmarshal([]byte(`{"field":"title","operator":"contains","value":"x"}`), &f)
	if err != nil {
		t.Fatal(err)
	}
	assert.True(t, f.CaseSensitive, "caseSensitive defaults to true")

	err = json.Unmarshal([]byte(`{"field":"title","operator":"contains","value":"x","caseSensitive":false}`), &f)
	if err != nil {
		t.Fatal(err)
	}
	assert.False(t, f.CaseSensitive)

	err = json.Unmarshal([]byte(`{"field":"title","operator":"like","value":"x"}`), &f)
	if err == nil {
		t.Fatal("invalid operator accepted")
	}
}

func TestSortRecords_MultiKeyStable(t *testing.T) {

	records := []record.Record{
		{"name": "b", "rank": float64(2), "pos": float64(0)},
		{"name": "a", "rank": float64(1), "pos": float64(1)},
		{"name": "a", "rank": float64(2), "pos": float64(2)},
		{"name": "a", "rank": float64(2), "pos": float64(3)},
	}

	err := SortRecords(records, []SortKey{{Field: "name"}, {Field: "rank", Order: Descending}})
	if err != nil {
		t.Fatal(err)
	}

	positions := make([]float64, len(records))
	for i, rec := range records {
		positions[i] = rec["pos"].(float64)
	}
	// a/2 before a/2 keeps original order, a/1 after them, b last
	assert.Equal(t, []float64{2, 3, 1, 0}, positions)

	// sorting again yields the identical order
	err = SortRecords(records, []SortKey{{Field: "name"}, {Field: "rank", Order: Descending}})
	if err != nil {
		t.Fatal(err)
	}
	for i, rec := range records {
		assert.Equal(t, positions[i], rec["pos"].(float64))
	}
}

func TestSortRecords_NullPlacement(t *testing.T) {

	records := []record.Record{
		{"score": float64(5), "pos": float64(0)},
		{"pos": float64(1)},
		{"score": float64(3), "pos": float64(2)},
		{"score": nil, "pos": float64(3)},
	}

	// ascending: null sorts as the lowest value
	err := SortRecords(records, []SortKey{{Field: "score", Order: Ascending}})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, float64(1), records[0]["pos"])
	assert.Equal(t, float64(3), records[1]["pos"])
	assert.Equal(t, float64(2), records[2]["pos"])
	assert.Equal(t, float64(0), records[3]["pos"])

	// descending: null sorts as the highest value
	err = SortRecords(records, []SortKey{{Field: "score", Order: Descending}})
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, float64(1), records[0]["pos"])
	assert.Equal(t, float64(3), records[1]["pos"])
	assert.Equal(t, float64(5), records[2]["score"])
	assert.Equal(t, float64(3), records[3]["score"])
}

func TestSortRecords_InvalidOrder(t *testing.T) {
	err := SortRecords([]record.Record{}, []SortKey{{Field: "x", Order: "sideways"}})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatal("invalid order accepted")
	}
}

func TestPage_Bounds(t *testing.T) {

	records := []record.Record{
		{"id": float64(1)}, {"id": float64(2)}, {"id": float64(3)},
		{"id": float64(4)}, {"id": float64(5)},
	}

	assert.Len(t, Page(records, 1, 2), 2)
	assert.Len(t, Page(records, 3, 2), 1)
	assert.Len(t, Page(records, 4, 2), 0)
	assert.Len(t, Page(records, 1, 100), 5)
	assert.Equal(t, float64(3), Page(records, 2, 2)[0]["id"])
}

func TestProject_NoImplicitPrimaryKey(t *testing.T) {

	records := []record.Record{
		{"id": float64(1), "title": "Hi", "body": "..."},
	}

	projected := Project(records, []string{"title"})
	assert.Equal(t, record.Record{"title": "Hi"}, projected[0])

	_, ok := projected[0]["id"]
	assert.False(t, ok, "primary key must not be included unless listed")

	// fields missing on the record are skipped, not set to null
	projected = Project(records, []string{"title", "ghost"})
	_, ok = projected[0]["ghost"]
	assert.False(t, ok)
}

func TestApply_FixedOrder(t *testing.T) {

	records := []record.Record{
		{"id": float64(1), "kind": "a", "rank": float64(3)},
		{"id": float64(2), "kind": "b", "rank": float64(1)},
		{"id": float64(3), "kind": "a", "rank": float64(1)},
		{"id": float64(4), "kind": "a", "rank": float64(2)},
	}

	out, err := Apply(records, Options{
		Filters: []Filter{{Field: "kind", Operator: OpEq, Value: "a", CaseSensitive: true}},
		Sort:    []SortKey{{Field: "rank"}},
		Page:    1,
		PerPage: 2,
		Fields:  []string{"id"},
	}, 20)
	if err != nil {
		t.Fatal(err)
	}

	// filtering happens before pagination: page 1 of the filtered set
	assert.Equal(t, []record.Record{{"id": float64(3)}, {"id": float64(4)}}, out)

	// the input slice keeps its order
	assert.Equal(t, float64(1), records[0]["id"])

	_, err = Apply(records, Options{Page: -1}, 20)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatal("negative page accepted")
	}
}

func TestApply_DefaultPerPage(t *testing.T) {

	var records []record.Record
	for i := 0; i < 30; i++ {
		records = append(records, record.Record{"id": float64(i)})
	}

	out, err := Apply(records, Options{}, 20)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, out, 20)

	// zero default disables pagination entirely
	out, err = Apply(records, Options{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	assert.Len(t, out, 30)
}
