// Package render is the template engine behind target rendering. It parses
// every template under a directory into one html/template set so templates
// can include each other by their slash-separated relative path.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// ModulesDir holds templates rendered through renderModule.
const ModulesDir = "modules"

// maxModuleDepth limits renderModule recursion.
const maxModuleDepth = 16

// DefaultExtensions are the template file extensions picked up by Load.
var DefaultExtensions = []string{".html", ".tmpl", ".gohtml", ".xml"}

// Options configures an Engine.
type Options struct {
	// Dir is the template root.
	Dir string
	// BaseDir resolves relative readFile paths. Empty means the working directory.
	BaseDir string
	// Extensions overrides DefaultExtensions.
	Extensions []string
	// Now overrides the clock used by currentYear.
	Now    func() time.Time
	Logger *slog.Logger
}

// Engine renders parsed templates with the site's function set.
type Engine struct {
	opts  Options
	root  *template.Template
	names []string
}

// Load parses all templates below opts.Dir.
func Load(opts Options) (*Engine, error) {
	if opts.Dir == "" {
		return nil, errors.New("template directory is required")
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{opts: opts}
	e.root = template.New("").Option("missingkey=zero").Funcs(e.staticFuncs()).Funcs(placeholderFuncs())

	err := filepath.WalkDir(opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !slices.Contains(opts.Extensions, strings.ToLower(filepath.Ext(path))) {
			return nil
		}
		rel, err := filepath.Rel(opts.Dir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		src, err := fsutil.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := e.root.New(name).Parse(string(src)); err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		e.names = append(e.names, name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load templates from %s: %w", opts.Dir, err)
	}
	slices.Sort(e.names)
	opts.Logger.Debug("Templates loaded", logfields.Path(opts.Dir), slog.Int("count", len(e.names)))
	return e, nil
}

// Names lists the loaded template ids.
func (e *Engine) Names() []string { return slices.Clone(e.names) }

// Has reports whether a template id exists.
func (e *Engine) Has(id string) bool { return e.root.Lookup(id) != nil }

// Render executes template id with data. It satisfies target.RenderFunc.
func (e *Engine) Render(id string, data map[string]any) (string, error) {
	return e.execute(id, data, 0)
}

func (e *Engine) execute(id string, data map[string]any, depth int) (string, error) {
	if e.root.Lookup(id) == nil {
		return "", fmt.Errorf("template %q not found", id)
	}
	set, err := e.root.Clone()
	if err != nil {
		return "", fmt.Errorf("clone templates: %w", err)
	}
	set.Funcs(template.FuncMap{
		"ctx": func() map[string]any { return data },
		"renderModule": func(module string, extra ...map[string]any) template.HTML {
			return e.renderModule(module, data, extra, depth)
		},
	})

	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, id, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderModule renders modules/<module> with the calling template's data
// merged with extra. Failures are rendered inline as the error text so a
// broken module does not fail the page.
func (e *Engine) renderModule(module string, data map[string]any, extra []map[string]any, depth int) template.HTML {
	if depth >= maxModuleDepth {
		return template.HTML(template.HTMLEscapeString("renderModule: nesting too deep at " + module))
	}
	id, ok := e.moduleID(module)
	if !ok {
		return template.HTML(template.HTMLEscapeString(fmt.Sprintf("renderModule: module %q not found", module)))
	}

	merged := make(map[string]any, len(data))
	maps.Copy(merged, data)
	for _, x := range extra {
		maps.Copy(merged, x)
	}

	out, err := e.execute(id, merged, depth+1)
	if err != nil {
		e.opts.Logger.Warn("Module render failed", logfields.Template(id), logfields.Error(err))
		return template.HTML(template.HTMLEscapeString(err.Error()))
	}
	// #nosec G203 -- module output was produced by html/template and is already escaped.
	return template.HTML(out)
}

func (e *Engine) moduleID(module string) (string, bool) {
	base := ModulesDir + "/" + strings.TrimPrefix(filepath.ToSlash(filepath.Clean(module)), "/")
	if e.Has(base) {
		return base, true
	}
	for _, ext := range e.opts.Extensions {
		if e.Has(base + ext) {
			return base + ext, true
		}
	}
	return "", false
}

func (e *Engine) readFile(path string) (string, error) {
	if !filepath.IsAbs(path) && e.opts.BaseDir != "" {
		path = filepath.Join(e.opts.BaseDir, path)
	}
	data, err := fsutil.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("readFile: %w", err)
	}
	return string(data), nil
}

// placeholderFuncs are replaced per execution; they exist so templates
// referencing them parse.
func placeholderFuncs() template.FuncMap {
	return template.FuncMap{
		"ctx":          func() map[string]any { return nil },
		"renderModule": func(string, ...map[string]any) template.HTML { return "" },
	}
}
