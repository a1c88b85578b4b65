package render

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplates(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	return dir
}

func TestEngine_RendersWithPartialsAndFuncs(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"page.html":         `{{template "partials/nav.html" .}}<h1>{{.title | title}}</h1>{{.body | markdown}}<footer>{{currentYear}}</footer>`,
		"partials/nav.html": `<nav>{{range .navLinks}}<a href="{{.url}}">{{.label}}</a>{{end}}</nav>`,
		"notes.txt":         `not a template`,
	})

	e, err := Load(Options{Dir: dir, Now: func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }})
	require.NoError(t, err)
	assert.Equal(t, []string{"page.html", "partials/nav.html"}, e.Names())

	out, err := e.Render("page.html", map[string]any{
		"title":    "hello world",
		"body":     "some *emphasis*",
		"navLinks": []any{map[string]any{"url": "/about", "label": "About"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, `<a href="/about">About</a>`)
	assert.Contains(t, out, "<h1>Hello World</h1>")
	assert.Contains(t, out, "<em>emphasis</em>")
	assert.Contains(t, out, "<footer>2026</footer>")
}

func TestEngine_EscapesUntrustedValues(t *testing.T) {
	dir := writeTemplates(t, map[string]string{"a.html": `<p>{{.name}}</p>`})
	e, err := Load(Options{Dir: dir})
	require.NoError(t, err)

	out, err := e.Render("a.html", map[string]any{"name": "<script>x</script>"})
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
}

func TestEngine_CtxReturnsTemplateData(t *testing.T) {
	dir := writeTemplates(t, map[string]string{"debug.html": `{{ctx | debug}}`})
	e, err := Load(Options{Dir: dir})
	require.NoError(t, err)

	out, err := e.Render("debug.html", map[string]any{"site": "Lab"})
	require.NoError(t, err)
	assert.Contains(t, out, "<pre>")
	assert.Contains(t, out, "&#34;site&#34;: &#34;Lab&#34;")
}

func TestEngine_RenderModule(t *testing.T) {
	dir := writeTemplates(t, map[string]string{
		"page.html":         `{{renderModule "Hero" .hero}}|{{renderModule "Missing"}}`,
		"modules/Hero.html": `<section>{{.heading}} to {{.site}}</section>`,
	})
	e, err := Load(Options{Dir: dir})
	require.NoError(t, err)

	out, err := e.Render("page.html", map[string]any{
		"site": "Lab",
		"hero": map[string]any{"heading": "Welcome"},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "<section>Welcome to Lab</section>")
	assert.Contains(t, out, "module &#34;Missing&#34; not found")
}

func TestEngine_ReadFile(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "intro.md"), []byte("# Intro"), 0o600))
	dir := writeTemplates(t, map[string]string{"a.html": `{{readFile "intro.md" | markdown}}`})

	e, err := Load(Options{Dir: dir, BaseDir: base})
	require.NoError(t, err)
	out, err := e.Render("a.html", nil)
	require.NoError(t, err)
	assert.Contains(t, out, `<h1 id="intro">Intro</h1>`)
}

func TestEngine_Errors(t *testing.T) {
	_, err := Load(Options{})
	require.Error(t, err)

	dir := writeTemplates(t, map[string]string{"broken.html": `{{if}}`})
	_, err = Load(Options{Dir: dir})
	require.ErrorContains(t, err, "broken.html")

	dir = writeTemplates(t, map[string]string{"a.html": `{{readFile "nope.md"}}`})
	e, err := Load(Options{Dir: dir, BaseDir: t.TempDir()})
	require.NoError(t, err)
	_, err = e.Render("a.html", nil)
	require.ErrorContains(t, err, "readFile: read ")
	require.ErrorContains(t, err, "nope.md")

	_, err = e.Render("missing.html", nil)
	require.ErrorContains(t, err, "not found")
}
