// Package frontmatter separates YAML front matter from markdown documents.
package frontmatter

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document opened a front matter
// block but never closed it.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

// Document is a parsed markdown file.
type Document struct {
	Fields map[string]any
	Body   []byte
	// Raw is the unparsed front matter block without delimiters.
	Raw []byte
}

// Split separates `---` delimited front matter from the body. When the
// document has no front matter, had is false and body is the whole input.
// Both LF and CRLF line endings are accepted.
func Split(content []byte) (fm []byte, body []byte, had bool, err error) {
	nl := newline(content)
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, nil
	}

	start := len(open)
	if bytes.HasPrefix(content[start:], open) {
		return []byte{}, content[start+len(open):], true, nil
	}

	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(content[start:], closing)
	if idx < 0 {
		// A closing delimiter at EOF without a trailing newline.
		if bytes.HasSuffix(content, []byte(nl+"---")) {
			end := len(content) - len(nl+"---")
			return content[start:end], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	return content[start : start+idx+len(nl)], content[start+idx+len(closing):], true, nil
}

// Parse splits content and decodes its YAML front matter.
func Parse(content []byte) (Document, error) {
	raw, body, _, err := Split(content)
	if err != nil {
		return Document{}, err
	}
	fields, err := ParseYAML(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{Fields: fields, Body: body, Raw: raw}, nil
}

// ParseYAML decodes a raw front matter block into a map. An empty block
// yields an empty map.
func ParseYAML(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var fields map[string]any
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

func newline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
