// Package markdown loads local markdown files with YAML front matter into the
// build context.
package markdown

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/frontmatter"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
)

// Config selects the files to load.
type Config struct {
	// Dir is walked recursively.
	Dir string
	// Key is the context key the entries are stored under.
	Key string
	// SortBy names a front matter field to order by; entries without it
	// sort last. Ties and the default order use the slug.
	SortBy string
}

// Plugin reads every *.md file below cfg.Dir. Each entry carries slug, path,
// fields (front matter), body, html and a content fingerprint.
func Plugin(cfg Config) pipeline.Plugin {
	return pipeline.Func("markdown:"+cfg.Key, func(_ context.Context, draft *sitectx.Draft, runner *pipeline.Runner) error {
		entries, err := Load(cfg)
		if err != nil {
			return err
		}
		runner.Logger().Info("Markdown entries loaded", "dir", cfg.Dir, "key", cfg.Key, "count", len(entries))
		draft.Set(cfg.Key, entries)
		return nil
	})
}

// Load reads and sorts the entries described by cfg.
func Load(cfg Config) ([]any, error) {
	var entries []map[string]any
	err := filepath.WalkDir(cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		entry, err := loadFile(cfg.Dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load markdown from %s: %w", cfg.Dir, err)
	}

	sortEntries(entries, cfg.SortBy)
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e
	}
	return out, nil
}

func loadFile(root, path string) (map[string]any, error) {
	content, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := frontmatter.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	html, err := render.Markdown(string(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	fp, err := Fingerprint(doc.Fields, doc.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)
	slug := strings.TrimSuffix(rel, filepath.Ext(rel))
	if s, ok := doc.Fields["slug"].(string); ok && s != "" {
		slug = s
	}

	return map[string]any{
		"slug":        slug,
		"path":        rel,
		"fields":      doc.Fields,
		"body":        string(doc.Body),
		"html":        string(html),
		"fingerprint": fp,
	}, nil
}

// Fingerprint hashes the front matter (minus any stored fingerprint) together
// with the body, so edits to either change it.
func Fingerprint(fields map[string]any, body []byte) (string, error) {
	hashed := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != mdfp.FingerprintField {
			hashed[k] = v
		}
	}
	fm := ""
	if len(hashed) > 0 {
		b, err := yaml.Marshal(hashed)
		if err != nil {
			return "", fmt.Errorf("serialize front matter: %w", err)
		}
		fm = strings.TrimSuffix(string(b), "\n")
	}
	return mdfp.CalculateFingerprintFromParts(fm, string(body)), nil
}

func sortEntries(entries []map[string]any, field string) {
	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i]["slug"].(string), entries[j]["slug"].(string)
		if field == "" {
			return si < sj
		}
		vi, iok := entries[i]["fields"].(map[string]any)[field]
		vj, jok := entries[j]["fields"].(map[string]any)[field]
		switch {
		case iok && !jok:
			return true
		case !iok && jok:
			return false
		case iok && jok:
			if c := compare(vi, vj); c != 0 {
				return c < 0
			}
		}
		return si < sj
	})
}

func compare(a, b any) int {
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
