package contentful

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
	"git.home.luguber.info/inful/sitebuilder/internal/sources"
)

const pagesPage0 = `{
  "total": 2, "skip": 0, "limit": 1,
  "items": [
    {"sys": {"id": "p1", "type": "Entry"}, "fields": {"url": "x", "hero": {"sys": {"type": "Link", "linkType": "Asset", "id": "a1"}}}}
  ],
  "includes": {"Asset": [{"sys": {"id": "a1", "type": "Asset"}, "fields": {"file": {"url": "//img/x.png"}}}]}
}`

const pagesPage1 = `{
  "total": 2, "skip": 1, "limit": 1,
  "items": [
    {"sys": {"id": "p2", "type": "Entry"}, "fields": {"url": "y", "related": [
      {"sys": {"type": "Link", "linkType": "Entry", "id": "p1"}},
      {"sys": {"type": "Link", "linkType": "Entry", "id": "gone"}}
    ]}}
  ]
}`

func newServer(t *testing.T, hits *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hits++
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.Equal(t, "/spaces/space/environments/master/entries", r.URL.Path)
		assert.Equal(t, strconv.Itoa(LinkDepth), r.URL.Query().Get("include"))

		switch r.URL.Query().Get("content_type") {
		case "page":
			if r.URL.Query().Get("skip") == "0" {
				_, _ = w.Write([]byte(pagesPage0))
				return
			}
			_, _ = w.Write([]byte(pagesPage1))
		case "navLink":
			_, _ = w.Write([]byte(`{"total":1,"items":[{"sys":{"id":"n1"},"fields":{"label":"About"}}]}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestPlugin_FetchesAndResolvesLinks(t *testing.T) {
	hits := 0
	srv := newServer(t, &hits)
	defer srv.Close()

	cfg := Config{
		Space: "space", AccessToken: "token", Host: srv.URL,
		Sources: []Source{{Key: "pages", ContentType: "page"}, {Key: "navLinks", ContentType: "navLink"}},
	}
	client := sources.NewClient(srv.Client(), retry.DefaultPolicy())

	frozen, err := pipeline.NewRunner().Run(t.Context(), []pipeline.Plugin{Plugin(cfg, client)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, hits)

	hero, ok := frozen.Lookup("pages.0.fields.hero.fields.file.url")
	require.True(t, ok)
	assert.Equal(t, "//img/x.png", hero)

	related, ok := frozen.Lookup("pages.1.fields.related.0.fields.url")
	require.True(t, ok)
	assert.Equal(t, "x", related)

	unresolved, ok := frozen.Lookup("pages.1.fields.related.1.sys.linkType")
	require.True(t, ok, "unresolvable links stay in place")
	assert.Equal(t, "Entry", unresolved)

	label, _ := frozen.Lookup("navLinks.0.fields.label")
	assert.Equal(t, "About", label)
}

func TestPlugin_BadRequestIsPluginError(t *testing.T) {
	hits := 0
	srv := newServer(t, &hits)
	defer srv.Close()

	cfg := Config{Space: "space", AccessToken: "token", Host: srv.URL, Sources: []Source{{Key: "x", ContentType: "unknown"}}}
	_, err := pipeline.NewRunner().Run(t.Context(), []pipeline.Plugin{
		Plugin(cfg, sources.NewClient(srv.Client(), retry.DefaultPolicy())),
	}, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "unexpected status 400")
	assert.Equal(t, 1, hits, "4xx is not retried")
}

func TestPlugin_RequiresCredentials(t *testing.T) {
	_, err := pipeline.NewRunner().Run(t.Context(), []pipeline.Plugin{
		Plugin(Config{Sources: []Source{{Key: "x", ContentType: "y"}}}, sources.NewClient(nil, retry.DefaultPolicy())),
	}, nil)
	require.ErrorContains(t, err, "access token")
}

func TestIndex_ResolveStopsAtDepth(t *testing.T) {
	idx := newIndex()
	self := map[string]any{
		"sys":    map[string]any{"id": "loop", "type": "Entry"},
		"fields": map[string]any{"next": map[string]any{"sys": map[string]any{"type": "Link", "linkType": "Entry", "id": "loop"}}},
	}
	idx.add("Entry", []map[string]any{self})

	out := idx.resolve(self, 2).(map[string]any)
	next := out["fields"].(map[string]any)["next"].(map[string]any)
	nextNext := next["fields"].(map[string]any)["next"].(map[string]any)
	last := nextNext["fields"].(map[string]any)["next"].(map[string]any)
	assert.Equal(t, "Link", last["sys"].(map[string]any)["type"])
}
