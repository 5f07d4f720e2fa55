package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotes_Tiered(t *testing.T) {
	tests := []struct {
		name  string
		notes Notes
		want  bool
	}{
		{"empty", NewNotes(), false},
		{"flat only", Notes{Flat: []string{"Rose"}}, false},
		{"base only", Notes{Base: []string{"Musk"}}, true},
		{"top and middle", Notes{Top: []string{"Lime"}, Middle: []string{"Rose"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.notes.Tiered())
		})
	}
}

func TestNotes_All(t *testing.T) {
	n := Notes{
		Top:    []string{"Bergamot", "Lemon"},
		Middle: []string{"Rose", "Bergamot"},
		Base:   []string{"Musk"},
	}

	assert.Equal(t, []string{"Bergamot", "Lemon", "Rose", "Musk"}, n.All())
	assert.Empty(t, NewNotes().All())
}

func TestNewNotes_EncodesEmptyArrays(t *testing.T) {
	data, err := json.Marshal(NewNotes())
	require.NoError(t, err)
	assert.JSONEq(t, `{"top":[],"middle":[],"base":[],"flat":[]}`, string(data))
}

func TestJSONKeysAreCamelCase(t *testing.T) {
	values := map[string]any{
		"record":  Record{SourceURL: "https://example.com/a.html", BrandName: "Creed", ScrapedBrand: "Creed", NoteLayout: LayoutPyramid, Notes: NewNotes()},
		"perfume": Perfume{ID: 1, BrandID: 2, BrandName: "Creed", SourceURL: "https://example.com/a.html", Notes: NewNotes()},
		"listing": BrandListing{URL: "https://example.com/b.html", BrandName: "Creed", PerfumeURLs: []string{"x"}},
		"targets": BrandTargets{BrandName: "Creed", PerfumeLinks: []string{"x"}},
	}

	for name, v := range values {
		t.Run(name, func(t *testing.T) {
			data, err := json.Marshal(v)
			require.NoError(t, err)

			var fields map[string]json.RawMessage
			require.NoError(t, json.Unmarshal(data, &fields))
			for key := range fields {
				assert.NotContains(t, key, "_", "key %q", key)
			}
		})
	}

	data, err := json.Marshal(Record{SourceURL: "u", BrandName: "b"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sourceUrl":"u"`)
	assert.Contains(t, string(data), `"brandName":"b"`)
}
