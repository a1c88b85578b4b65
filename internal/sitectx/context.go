// Package sitectx holds the shared key/value context a build accumulates.
//
// A build owns exactly one Draft while its plugin pipeline runs. Plugins write
// into the Draft; when the pipeline completes the Draft is frozen into a
// Frozen snapshot that the render phase reads. Writing to a Draft after it has
// been frozen is a programming error and panics.
package sitectx

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Draft is the mutable context exclusively owned by a running pipeline.
type Draft struct {
	values map[string]any
	frozen bool
}

// NewDraft creates a draft seeded with a shallow copy of initial.
func NewDraft(initial map[string]any) *Draft {
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)
	return &Draft{values: values}
}

// Set stores value under key. The last writer for a key wins.
func (d *Draft) Set(key string, value any) {
	d.mustBeOpen(key)
	d.values[key] = value
}

// Merge stores every entry of values, overwriting existing keys.
func (d *Draft) Merge(values map[string]any) {
	for k, v := range values {
		d.mustBeOpen(k)
		d.values[k] = v
	}
}

// Get returns the value stored under key.
func (d *Draft) Get(key string) (any, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Len returns the number of keys.
func (d *Draft) Len() int { return len(d.values) }

// Frozen reports whether Freeze has been called.
func (d *Draft) Frozen() bool { return d.frozen }

// Freeze ends the write phase and returns the read-only snapshot.
// Calling Freeze twice returns equivalent snapshots.
func (d *Draft) Freeze() *Frozen {
	d.frozen = true
	return &Frozen{values: d.values}
}

func (d *Draft) mustBeOpen(key string) {
	if d.frozen {
		panic(fmt.Sprintf("sitectx: write to frozen context (key %q)", key))
	}
}

// Frozen is an immutable context snapshot. It is safe for concurrent readers.
type Frozen struct {
	values map[string]any
}

// Empty returns a frozen context without keys.
func Empty() *Frozen {
	return &Frozen{values: map[string]any{}}
}

// FromMap freezes a copy of values. Mostly useful in tests and for cached payloads.
func FromMap(values map[string]any) *Frozen {
	return NewDraft(values).Freeze()
}

// Get returns a deep copy of the value stored under key.
func (f *Frozen) Get(key string) (any, bool) {
	if f == nil {
		return nil, false
	}
	v, ok := f.values[key]
	if !ok {
		return nil, false
	}
	return DeepCopy(v), true
}

// Has reports whether key is present.
func (f *Frozen) Has(key string) bool {
	if f == nil {
		return false
	}
	_, ok := f.values[key]
	return ok
}

// Len returns the number of keys.
func (f *Frozen) Len() int {
	if f == nil {
		return 0
	}
	return len(f.values)
}

// Keys returns all keys in sorted order.
func (f *Frozen) Keys() []string {
	if f == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(f.values))
}

// Map returns a deep copy of the context that callers may modify freely.
func (f *Frozen) Map() map[string]any {
	if f == nil {
		return map[string]any{}
	}
	return copyMap(f.values)
}

// Lookup resolves a dotted path such as "site.pages" or "pages.0.fields".
// Map segments select keys, numeric segments index slices.
func (f *Frozen) Lookup(path string) (any, bool) {
	if f == nil || path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	cur, ok := f.values[parts[0]]
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		switch node := cur.(type) {
		case map[string]any:
			if cur, ok = node[part]; !ok {
				return nil, false
			}
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return DeepCopy(cur), true
}

// DeepCopy copies the JSON-like containers (maps and slices) of v. Scalars and
// other types are returned as is.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(val))
		for i, item := range val {
			out[i] = copyMap(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = DeepCopy(v)
	}
	return out
}
