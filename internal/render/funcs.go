package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"reflect"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SiteTimeZone is the zone friendlyDate formats in.
const SiteTimeZone = "America/Detroit"

var markdownRenderer = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Typographer),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps(), gmhtml.WithUnsafe()),
)

var titleCaser = cases.Title(language.English)

func (e *Engine) staticFuncs() template.FuncMap {
	return template.FuncMap{
		"readFile":       e.readFile,
		"currentYear":    func() int { return e.opts.Now().Year() },
		"friendlyDate":   FriendlyDate,
		"debug":          Debug,
		"markdown":       Markdown,
		"markdownInline": MarkdownInline,
		"filterBy":       FilterBy,
		"title":          Title,
		"plaintext":      Plaintext,
		"truncate":       Truncate,
		"safe":           func(s string) template.HTML { return template.HTML(s) }, // #nosec G203 -- explicit opt-in from template authors.
	}
}

// Markdown renders a markdown document to HTML.
func Markdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("markdown: %w", err)
	}
	// #nosec G203 -- markdown content is authored by the site owner.
	return template.HTML(buf.String()), nil
}

// MarkdownInline renders markdown without the wrapping paragraph.
func MarkdownInline(src string) (template.HTML, error) {
	out, err := Markdown(src)
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(out))
	if strings.HasPrefix(s, "<p>") && strings.HasSuffix(s, "</p>") && strings.Count(s, "<p>") == 1 {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "<p>"), "</p>")
	}
	// #nosec G203 -- see Markdown.
	return template.HTML(s), nil
}

// Debug dumps v as indented JSON wrapped in <pre>.
func Debug(v any) template.HTML {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b = []byte(err.Error())
	}
	// #nosec G203 -- content is escaped before wrapping.
	return template.HTML("<pre>" + template.HTMLEscapeString(string(b)) + "</pre>")
}

// FilterBy keeps the items of list whose field prop equals want. The list
// comes last so it works in a pipeline:
//
//	{{ range .events | filterBy "status" "live" }}
//
// With only prop and the list, want defaults to true.
func FilterBy(prop string, args ...any) ([]any, error) {
	var want any = true
	switch len(args) {
	case 1:
	case 2:
		want = args[0]
	default:
		return nil, fmt.Errorf("filterBy: expected 2 or 3 arguments, got %d", len(args)+1)
	}

	list := reflect.ValueOf(args[len(args)-1])
	if !list.IsValid() {
		return nil, nil
	}
	if list.Kind() != reflect.Slice && list.Kind() != reflect.Array {
		return nil, fmt.Errorf("filterBy: cannot filter %T", args[len(args)-1])
	}

	var out []any
	for i := range list.Len() {
		item := list.Index(i).Interface()
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if equal(m[prop], want) {
			out = append(out, item)
		}
	}
	return out, nil
}

func equal(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	// JSON numbers decode as float64 while template literals are int.
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	return aok && bok && af == bf
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Title converts s to title case.
func Title(s string) string {
	return titleCaser.String(s)
}

// Plaintext strips markup from an HTML fragment and collapses whitespace.
func Plaintext(src any) string {
	var s string
	switch v := src.(type) {
	case template.HTML:
		s = string(v)
	case string:
		s = v
	default:
		s = fmt.Sprint(v)
	}

	var sb strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.StartTagToken:
			if name, _ := z.TagName(); string(name) == "script" || string(name) == "style" {
				skip++
			}
			sb.WriteByte(' ')
		case html.EndTagToken:
			if name, _ := z.TagName(); (string(name) == "script" || string(name) == "style") && skip > 0 {
				skip--
			}
			sb.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(n int, s string) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return strings.TrimRight(string(r[:n]), " ") + "…"
}

var (
	meridiemRe = regexp.MustCompile(`\s(AM|PM)`)
	zeroMinRe  = regexp.MustCompile(`:00(am|pm)`)
)

// Date layouts accepted by friendlyDate.
var friendlyLayouts = map[string]string{
	"":         "1/2/2006",
	"date":     "1/2/2006",
	"long":     "Monday, January 2, 2006",
	"time":     "3:04 PM MST",
	"datetime": "Mon, Jan 2, 3:04 PM MST",
}

// FriendlyDate formats an RFC 3339 timestamp (or time.Time) in the site's
// time zone. Meridiem markers are shortened to "am"/"pm", whole hours drop
// ":00", and EST/EDT become ET.
func FriendlyDate(v any, format ...string) (string, error) {
	var t time.Time
	switch val := v.(type) {
	case time.Time:
		t = val
	case string:
		parsed, err := parseTime(val)
		if err != nil {
			return "", fmt.Errorf("friendlyDate: %w", err)
		}
		t = parsed
	default:
		return "", fmt.Errorf("friendlyDate: unsupported value %T", v)
	}

	name := ""
	if len(format) > 0 {
		name = format[0]
	}
	layout, ok := friendlyLayouts[name]
	if !ok {
		layout = name
	}

	loc, err := time.LoadLocation(SiteTimeZone)
	if err != nil {
		return "", err
	}
	s := t.In(loc).Format(layout)
	s = meridiemRe.ReplaceAllStringFunc(s, func(m string) string { return strings.ToLower(strings.TrimSpace(m)) })
	s = zeroMinRe.ReplaceAllString(s, "$1")
	s = strings.NewReplacer("EST", "ET", "EDT", "ET").Replace(s)
	return s, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}
