package docstore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycle string

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestMatch(t *testing.T) {
	doc := decode(t, `{
		"id": "q1",
		"status": "active",
		"difficulty": "Easy",
		"marks": 4,
		"tags": ["algebra", "jee"],
		"meta": {"owner": "u1"},
		"courseId": ""
	}`)

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty filter", nil, true},
		{"equality", Filter{"difficulty": "Easy"}, true},
		{"typed string", Filter{"status": lifecycle("active")}, true},
		{"mismatch", Filter{"difficulty": "Hard"}, false},
		{"int vs float", Filter{"marks": 4}, true},
		{"array contains", Filter{"tags": "jee"}, true},
		{"array missing", Filter{"tags": "neet"}, false},
		{"dotted path", Filter{"meta.owner": "u1"}, true},
		{"empty string present", Filter{"courseId": ""}, true},
		{"missing field", Filter{"questionSetId": "s1"}, false},
		{"missing field nil", Filter{"questionSetId": nil}, true},
		{"gt", Filter{"marks": Gt{Value: 3}}, true},
		{"gt equal", Filter{"marks": Gt{Value: 4}}, false},
		{"in", Filter{"id": InStrings([]string{"q9", "q1"})}, true},
		{"in none", Filter{"id": InStrings([]string{"q9"})}, false},
		{"in array field", Filter{"tags": InStrings([]string{"x", "algebra"})}, true},
		{"conjunction", Filter{"difficulty": "Easy", "marks": 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(doc, tt.filter))
		})
	}
}

func TestApplySortAndPage(t *testing.T) {
	var docs []decoded
	for _, s := range []string{
		`{"id":"a","score":70}`,
		`{"id":"b","score":90}`,
		`{"id":"c","score":80}`,
		`{"id":"d"}`,
	} {
		docs = append(docs, decoded{body: []byte(s), fields: decode(t, s)})
	}

	ids := func(ds []decoded) []string {
		var out []string
		for _, d := range ds {
			out = append(out, d.fields["id"].(string))
		}
		return out
	}

	got := apply(append([]decoded(nil), docs...), Query{Sort: "score", Desc: true})
	assert.Equal(t, []string{"b", "c", "a", "d"}, ids(got))

	got = apply(append([]decoded(nil), docs...), Query{Sort: "score", Offset: 1, Limit: 2})
	assert.Equal(t, []string{"a", "c"}, ids(got))

	got = apply(append([]decoded(nil), docs...), Query{Offset: 10})
	assert.Empty(t, got)
}

func TestCompareTimestamps(t *testing.T) {
	assert.Equal(t, -1, compareValues("2025-01-01T00:00:00.5Z", "2025-01-01T00:00:00.51Z"))
	assert.Equal(t, -1, compareValues("2025-01-01T00:00:00Z", "2025-01-01T00:00:00.1Z"))
	assert.Equal(t, -1, compareValues("apple", "banana"))
}
