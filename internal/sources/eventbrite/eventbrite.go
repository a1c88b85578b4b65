// Package eventbrite lists the live events of an Eventbrite organization.
package eventbrite

import (
	"context"
	"fmt"
	"net/url"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pipeline"
	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
	"git.home.luguber.info/inful/sitebuilder/internal/sources"
)

const (
	DefaultBaseURL = "https://www.eventbriteapi.com/v3"
	DefaultKey     = "events"
)

// Config configures the plugin.
type Config struct {
	Token          string
	OrganizationID string
	BaseURL        string
	Key            string
	// Expand is passed as the expand query parameter, e.g. "ticket_classes".
	Expand string
}

type response struct {
	Events     []any `json:"events"`
	Pagination struct {
		HasMoreItems bool   `json:"has_more_items"`
		Continuation string `json:"continuation"`
	} `json:"pagination"`
}

// Plugin fetches all live events, following continuation tokens.
func Plugin(cfg Config, client *sources.Client) pipeline.Plugin {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Key == "" {
		cfg.Key = DefaultKey
	}

	return pipeline.Func("eventbrite", func(ctx context.Context, draft *sitectx.Draft, runner *pipeline.Runner) error {
		if cfg.Token == "" || cfg.OrganizationID == "" {
			return ferrors.ConfigError("eventbrite token and organization id are required").Build()
		}
		headers := map[string]string{"Authorization": "Bearer " + cfg.Token}

		events := []any{}
		continuation := ""
		for {
			q := url.Values{}
			q.Set("status", "live")
			if cfg.Expand != "" {
				q.Set("expand", cfg.Expand)
			}
			if continuation != "" {
				q.Set("continuation", continuation)
			}
			endpoint := fmt.Sprintf("%s/organizations/%s/events/?%s", cfg.BaseURL, url.PathEscape(cfg.OrganizationID), q.Encode())

			var page response
			if err := client.GetJSON(ctx, endpoint, headers, &page); err != nil {
				return err
			}
			events = append(events, page.Events...)
			if !page.Pagination.HasMoreItems || page.Pagination.Continuation == "" {
				break
			}
			continuation = page.Pagination.Continuation
		}

		runner.Logger().Info("Eventbrite events fetched", "count", len(events), "key", cfg.Key)
		draft.Set(cfg.Key, events)
		return nil
	})
}
