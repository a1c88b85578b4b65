package config

import (
	"errors"
	"io/fs"
	"os"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/fsutil"
)

// Example is the configuration written by `sitebuilder init`.
const Example = `# sitebuilder configuration
templates:
  dir: templates

output:
  dir: dist
  clean: true

context:
  site:
    name: My Site
    url: https://example.com

static:
  - from: static
    to: ""

cache:
  # enabled defaults to true when SITE_ENV=development
  dir: .cache/sitebuilder
  key: remote-data
  ttl: 24h
  backend: file
  corrupt_policy: strict

sources:
  markdown:
    - dir: content/posts
      key: posts
      sort_by: date
  # contentful:
  #   space: ${CONTENTFUL_SPACE}
  #   access_token: ${CONTENTFUL_TOKEN}
  #   sources:
  #     - key: pages
  #       content_type: page
  retry:
    backoff: exponential
    initial: 500ms
    max: 10s
    max_retries: 3

targets:
  - template: index.html
    dest: index.html
    include: "*"
  - template: post.html
    dest: posts/{slug}/index.html
    collection: posts
    include: [site]
  - group:
      - template: sitemap.xml
        dest: sitemap.xml
        include: [site, posts]
      - template: drafts.html
        dest: drafts/index.html
        include: "*"
        when: development

watch:
  dir: .
  debounce: 300ms
  max_delay: 5s
  # refresh_interval: 15m
  # metrics_addr: ":9090"

# notify:
#   nats_url: nats://127.0.0.1:4222
#   subject: sitebuilder.builds
`

// WriteExample writes Example to path. An existing file is kept unless force is set.
func WriteExample(path string, force bool) error {
	if path == "" {
		path = DefaultPath
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return ferrors.ConfigError("configuration file already exists, use --force to overwrite").
				WithContext("path", path).
				UserAction().
				Build()
		} else if !errors.Is(err, fs.ErrNotExist) {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to check configuration path").Build()
		}
	}
	if err := fsutil.WriteFile(path, []byte(Example)); err != nil {
		return ferrors.WriteError("failed to write configuration").WithCause(err).
			WithContext("path", path).Build()
	}
	return nil
}
