package sitectx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDraft_LastWriterWins(t *testing.T) {
	d := NewDraft(map[string]any{"isDevelopment": true})
	d.Set("events", []any{"a"})
	d.Set("events", []any{"b"})
	d.Merge(map[string]any{"pages": []any{}})

	v, ok := d.Get("events")
	require.True(t, ok)
	require.Equal(t, []any{"b"}, v)
	require.Equal(t, 3, d.Len())
}

func TestDraft_NewDraftCopiesInitial(t *testing.T) {
	initial := map[string]any{"a": 1}
	d := NewDraft(initial)
	d.Set("b", 2)
	require.NotContains(t, initial, "b")
}

func TestDraft_WriteAfterFreezePanics(t *testing.T) {
	d := NewDraft(nil)
	d.Set("a", 1)
	f := d.Freeze()
	require.True(t, d.Frozen())

	require.Panics(t, func() { d.Set("b", 2) })
	require.Panics(t, func() { d.Merge(map[string]any{"c": 3}) })
	require.False(t, f.Has("b"))
	require.Equal(t, []string{"a"}, f.Keys())
}

func TestFrozen_MapIsDeepCopy(t *testing.T) {
	f := FromMap(map[string]any{
		"pages": []any{map[string]any{"url": "x"}},
	})

	m := f.Map()
	m["pages"].([]any)[0].(map[string]any)["url"] = "mutated"
	m["extra"] = true

	v, _ := f.Lookup("pages.0.url")
	require.Equal(t, "x", v)
	require.False(t, f.Has("extra"))
}

func TestFrozen_GetIsDeepCopy(t *testing.T) {
	f := FromMap(map[string]any{
		"site":  map[string]any{"name": "Demo"},
		"pages": []any{"a"},
	})

	site, ok := f.Get("site")
	require.True(t, ok)
	site.(map[string]any)["name"] = "mutated"
	pages, _ := f.Get("pages")
	pages.([]any)[0] = "mutated"

	v, _ := f.Lookup("site.name")
	require.Equal(t, "Demo", v)
	v, _ = f.Lookup("pages.0")
	require.Equal(t, "a", v)

	_, ok = f.Get("missing")
	require.False(t, ok)
}

func TestFrozen_Lookup(t *testing.T) {
	f := FromMap(map[string]any{
		"site": map[string]any{"pages": []any{"a", "b"}},
	})

	tests := []struct {
		path string
		want any
		ok   bool
	}{
		{"site.pages.1", "b", true},
		{"site.pages", []any{"a", "b"}, true},
		{"site.missing", nil, false},
		{"site.pages.7", nil, false},
		{"site.pages.x", nil, false},
		{"nope", nil, false},
		{"", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := f.Lookup(tt.path)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFrozen_NilSafe(t *testing.T) {
	var f *Frozen
	require.Equal(t, 0, f.Len())
	require.False(t, f.Has("x"))
	require.Empty(t, f.Map())
	require.Nil(t, f.Keys())
	require.Equal(t, 0, Empty().Len())
}
