package builder

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
	"git.home.luguber.info/inful/sitebuilder/internal/target"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

// TargetTree converts configured targets into a target tree. Entries whose
// `when` does not match env are kept but disabled, so they show up as
// skipped.
func TargetTree(cfgs []config.TargetConfig, env config.Environment) []target.Node {
	return convertTargets(cfgs, env, false)
}

func convertTargets(cfgs []config.TargetConfig, env config.Environment, disabled bool) []target.Node {
	nodes := make([]target.Node, 0, len(cfgs))
	for _, tc := range cfgs {
		off := disabled || (tc.When != "" && config.Environment(tc.When) != env)
		switch {
		case len(tc.Group) > 0:
			nodes = append(nodes, target.Group(convertTargets(tc.Group, env, off)))
		case tc.Collection != "":
			nodes = append(nodes, collection(tc, off))
		default:
			nodes = append(nodes, staticTarget(tc, tc.Dest, tc.Extra, off))
		}
	}
	return nodes
}

func staticTarget(tc config.TargetConfig, dest string, extra map[string]any, off bool) target.Target {
	t := target.Target{
		Template:     tc.Template,
		Dest:         dest,
		Include:      include(tc.Include),
		ExtraContext: extra,
		Enabled:      tc.Enabled,
	}
	if off {
		t.Enabled = target.Bool(false)
	}
	return t
}

func include(spec config.IncludeSpec) target.Include {
	if spec.All {
		return target.IncludeAll()
	}
	return target.IncludeKeys(spec.Keys...)
}

// collection emits one target per item of the list at tc.Collection. The
// dest pattern is filled from item fields and the item (or its Spread
// field) is merged over the configured extra context.
func collection(tc config.TargetConfig, off bool) target.Generator {
	return func(c *sitectx.Frozen) ([]target.Node, error) {
		raw, ok := c.Lookup(tc.Collection)
		if !ok {
			return nil, fmt.Errorf("collection %q not found in context", tc.Collection)
		}
		items, err := asItems(raw)
		if err != nil {
			return nil, fmt.Errorf("collection %q: %w", tc.Collection, err)
		}
		nodes := make([]target.Node, 0, len(items))
		for i, item := range items {
			dest, err := expandDest(tc.Dest, item)
			if err != nil {
				return nil, fmt.Errorf("collection %q item %d: %w", tc.Collection, i, err)
			}
			spread := item
			if tc.Spread != "" {
				v, ok := lookup(item, tc.Spread)
				if !ok {
					return nil, fmt.Errorf("collection %q item %d: spread field %q missing", tc.Collection, i, tc.Spread)
				}
				m, ok := v.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("collection %q item %d: spread field %q is %T, not a map", tc.Collection, i, tc.Spread, v)
				}
				spread = m
			}
			extra := make(map[string]any, len(tc.Extra)+len(spread))
			maps.Copy(extra, tc.Extra)
			maps.Copy(extra, spread)
			nodes = append(nodes, staticTarget(tc, dest, extra, off))
		}
		return nodes, nil
	}
}

func asItems(v any) ([]map[string]any, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return list, nil
	case []any:
		out := make([]map[string]any, 0, len(list))
		for i, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, not a map", i, item)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is %T, not a list", v)
	}
}

func expandDest(pattern string, item map[string]any) (string, error) {
	var missing []string
	dest := placeholder.ReplaceAllStringFunc(pattern, func(m string) string {
		field := m[1 : len(m)-1]
		v, ok := lookup(item, field)
		if !ok || v == nil {
			missing = append(missing, field)
			return m
		}
		return fmt.Sprint(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("dest %q: missing fields %s", pattern, strings.Join(missing, ", "))
	}
	return dest, nil
}

func lookup(item map[string]any, path string) (any, bool) {
	var cur any = item
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}
