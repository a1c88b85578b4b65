// Package contentful fetches entries from the Contentful Content Delivery API
// and stores them in the build context, one context key per content type.
package contentful

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
	"git.home.luguber.info/inful/sitebuilder/internal/sources"
)

const (
	// DefaultHost is the Content Delivery API host.
	DefaultHost = "cdn.contentful.com"
	// LinkDepth is how many levels of linked entries are resolved.
	LinkDepth = 10
	pageSize  = 1000
)

// Source maps a Contentful content type onto a context key.
type Source struct {
	Key         string `yaml:"key" validate:"required"`
	ContentType string `yaml:"content_type" validate:"required"`
}

// Config holds the space credentials and the sources to fetch.
type Config struct {
	Space       string
	AccessToken string
	Environment string
	// Host overrides DefaultHost; a value with a scheme is used as the base URL.
	Host    string
	Sources []Source
}

func (c Config) baseURL() string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	env := c.Environment
	if env == "" {
		env = "master"
	}
	return fmt.Sprintf("%s/spaces/%s/environments/%s/entries",
		strings.TrimRight(host, "/"), url.PathEscape(c.Space), url.PathEscape(env))
}

type response struct {
	Total    int              `json:"total"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
	Items    []map[string]any `json:"items"`
	Includes struct {
		Entry []map[string]any `json:"Entry"`
		Asset []map[string]any `json:"Asset"`
	} `json:"includes"`
}

// Plugin fetches every configured source and writes its entries, with links
// resolved, under the source key.
func Plugin(cfg Config, client *sources.Client) pipeline.Plugin {
	return pipeline.Func("contentful", func(ctx context.Context, draft *sitectx.Draft, runner *pipeline.Runner) error {
		for _, src := range cfg.Sources {
			entries, err := fetch(ctx, cfg, client, src.ContentType)
			if err != nil {
				return err
			}
			runner.Logger().Info("Contentful entries fetched",
				"content_type", src.ContentType, "key", src.Key, "count", len(entries))
			draft.Set(src.Key, entries)
		}
		return nil
	})
}

func fetch(ctx context.Context, cfg Config, client *sources.Client, contentType string) ([]any, error) {
	if cfg.Space == "" || cfg.AccessToken == "" {
		return nil, ferrors.ConfigError("contentful space and access token are required").Build()
	}
	headers := map[string]string{"Authorization": "Bearer " + cfg.AccessToken}

	idx := newIndex()
	var items []map[string]any
	for skip := 0; ; {
		q := url.Values{}
		q.Set("content_type", contentType)
		q.Set("include", strconv.Itoa(LinkDepth))
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("skip", strconv.Itoa(skip))

		var page response
		if err := client.GetJSON(ctx, cfg.baseURL()+"?"+q.Encode(), headers, &page); err != nil {
			return nil, fmt.Errorf("contentful %s: %w", contentType, err)
		}
		idx.add("Entry", page.Items)
		idx.add("Entry", page.Includes.Entry)
		idx.add("Asset", page.Includes.Asset)
		items = append(items, page.Items...)

		skip += len(page.Items)
		if len(page.Items) == 0 || skip >= page.Total {
			break
		}
	}

	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, idx.resolve(item, LinkDepth))
	}
	return out, nil
}

// index finds entries and assets by link type and id.
type index map[string]map[string]any

func newIndex() index { return index{} }

func (x index) add(linkType string, items []map[string]any) {
	for _, item := range items {
		if id := sysString(item, "id"); id != "" {
			x[linkType+":"+id] = item
		}
	}
}

// resolve returns a copy of v with link objects replaced by the linked item,
// descending at most depth levels. Unresolvable links are left in place.
func (x index) resolve(v any, depth int) any {
	switch val := v.(type) {
	case map[string]any:
		if sysString(val, "type") == "Link" && depth > 0 {
			if target, ok := x[sysString(val, "linkType")+":"+sysString(val, "id")]; ok {
				return x.resolve(target, depth-1)
			}
			return val
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			if k == "sys" {
				out[k] = item
				continue
			}
			out[k] = x.resolve(item, depth)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = x.resolve(item, depth)
		}
		return out
	default:
		return v
	}
}

func sysString(item map[string]any, field string) string {
	sys, _ := item["sys"].(map[string]any)
	s, _ := sys[field].(string)
	return s
}
