// Package tickettailor lists upcoming public events from the Ticket Tailor API.
package tickettailor

import (
	"context"
	"encoding/base64"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
	"git.home.luguber.info/inful/sitebuilder/internal/sources"
)

// DefaultURL is the events endpoint.
const DefaultURL = "https://api.tickettailor.com/v1/events"

// DefaultKey is the context key events are stored under.
const DefaultKey = "events"

// Config configures the plugin.
type Config struct {
	Token string
	URL   string
	Key   string
	Clock clockwork.Clock
}

type response struct {
	Data []map[string]any `json:"data"`
}

// Plugin fetches events, drops ended, hidden and private ones, marks events
// whose ticket sales have not opened with tickets_available "upcoming", and
// stores them sorted by start time.
func Plugin(cfg Config, client *sources.Client) pipeline.Plugin {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	return pipeline.Func("tickettailor", func(ctx context.Context, draft *sitectx.Draft, runner *pipeline.Runner) error {
		if cfg.Token == "" {
			return ferrors.ConfigError("ticket tailor token is required").Build()
		}
		auth := base64.StdEncoding.EncodeToString([]byte(cfg.Token))

		var resp response
		if err := client.GetJSON(ctx, cfg.URL, map[string]string{"Authorization": "Basic " + auth}, &resp); err != nil {
			return err
		}

		events := Filter(resp.Data, cfg.Clock.Now())
		runner.Logger().Info("Ticket Tailor events fetched", "count", len(events), "key", cfg.Key)
		draft.Set(cfg.Key, events)
		return nil
	})
}

// Filter applies the listing rules at now and returns the events as []any.
func Filter(data []map[string]any, now time.Time) []any {
	type dated struct {
		start time.Time
		event map[string]any
	}

	var kept []dated
	for _, evt := range data {
		if end, ok := unixField(evt, "end"); ok && !now.Before(end) {
			continue
		}
		if isTrue(evt["hidden"]) || isTrue(evt["private"]) {
			continue
		}

		cp := make(map[string]any, len(evt)+1)
		for k, v := range evt {
			cp[k] = v
		}
		if onSale, ok := isoField(evt, "tickets_available_at"); ok && now.Before(onSale) {
			cp["tickets_available"] = "upcoming"
		}
		start, _ := isoField(evt, "start")
		kept = append(kept, dated{start: start, event: cp})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].start.Before(kept[j].start) })

	out := make([]any, len(kept))
	for i, d := range kept {
		out[i] = d.event
	}
	return out
}

// isTrue accepts the API's "true" strings as well as booleans.
func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}

func unixField(evt map[string]any, field string) (time.Time, bool) {
	m, _ := evt[field].(map[string]any)
	n, ok := m["unix"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(n), 0), true
}

func isoField(evt map[string]any, field string) (time.Time, bool) {
	m, _ := evt[field].(map[string]any)
	s, _ := m["iso"].(string)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
