// Package target resolves and renders the tree of output targets.
//
// A tree is a slice of Nodes. A Node is exactly one of Target (a static
// output), Generator (a function deriving more nodes from the frozen build
// context) or Group (a nested list). Resolution is depth-first and
// left-to-right; generators may themselves return generators or groups.
package target

import (
	"maps"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
)

// Node is the closed set of tree elements: Target, Generator and Group.
type Node interface {
	node()
}

// Target describes one rendered output file.
type Target struct {
	// Template identifies the template passed to the RenderFunc.
	Template string
	// Dest is the output path.
	Dest string
	// Include selects which context keys the template sees.
	Include Include
	// ExtraContext is merged over the projected context and wins on conflicts.
	ExtraContext map[string]any
	// Enabled disables the target when explicitly false. Nil means enabled.
	Enabled *bool
}

// Generator derives nodes from the frozen context at render time.
type Generator func(c *sitectx.Frozen) ([]Node, error)

// Group is a nested list of nodes rendered in order.
type Group []Node

func (Target) node()    {}
func (Generator) node() {}
func (Group) node()     {}

// IsEnabled reports whether the target should be rendered.
func (t Target) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Bool returns a pointer to b, for Target.Enabled literals.
func Bool(b bool) *bool { return &b }

type includeMode uint8

const (
	includeNone includeMode = iota
	includeKeys
	includeAll
)

// Include is the context projection of a Target. The zero value includes nothing.
type Include struct {
	mode includeMode
	keys []string
}

// IncludeNone selects no keys.
func IncludeNone() Include { return Include{} }

// IncludeAll selects the whole context (the "*" wildcard).
func IncludeAll() Include { return Include{mode: includeAll} }

// IncludeKeys selects the listed keys in order. Keys missing from the context
// are skipped without error.
func IncludeKeys(keys ...string) Include {
	if len(keys) == 0 {
		return IncludeNone()
	}
	return Include{mode: includeKeys, keys: append([]string(nil), keys...)}
}

// IsAll reports whether the projection is the wildcard.
func (i Include) IsAll() bool { return i.mode == includeAll }

// Keys returns the explicit key list; nil for the wildcard and for none.
func (i Include) Keys() []string {
	if i.mode != includeKeys {
		return nil
	}
	return append([]string(nil), i.keys...)
}

// String renders the projection as it would appear in configuration.
func (i Include) String() string {
	switch i.mode {
	case includeAll:
		return "*"
	case includeKeys:
		return strings.Join(i.keys, ",")
	default:
		return "-"
	}
}

// SubContext builds the data passed to the template of t. The wildcard yields
// a deep copy of the whole context, a key list copies only the keys present,
// and ExtraContext is merged last so it overrides projected values.
func SubContext(t Target, c *sitectx.Frozen) map[string]any {
	var data map[string]any
	switch t.Include.mode {
	case includeAll:
		data = c.Map()
	case includeKeys:
		data = make(map[string]any, len(t.Include.keys)+len(t.ExtraContext))
		for _, k := range t.Include.keys {
			if v, ok := c.Get(k); ok {
				data[k] = v
			}
		}
	default:
		data = make(map[string]any, len(t.ExtraContext))
	}
	maps.Copy(data, t.ExtraContext)
	return data
}
