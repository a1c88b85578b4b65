// Package config loads sitebuilder.yaml.
//
// Loading order: .env files are read into the environment (existing variables
// win), ${VAR} references in the YAML are expanded, the document is decoded,
// defaults are applied and the result is validated.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/sitectx"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "sitebuilder.yaml"

// Config is the root configuration document.
type Config struct {
	Templates TemplatesConfig `yaml:"templates"`
	Output    OutputConfig    `yaml:"output"`
	// Context seeds the build context before any plugin runs.
	Context map[string]any `yaml:"context,omitempty"`
	Static  []StaticCopy   `yaml:"static,omitempty" validate:"dive"`
	Cache   CacheConfig    `yaml:"cache"`
	Sources SourcesConfig  `yaml:"sources"`
	Targets []TargetConfig `yaml:"targets" validate:"dive"`
	Watch   WatchConfig    `yaml:"watch"`
	Notify  NotifyConfig   `yaml:"notify,omitempty"`

	// Environment is taken from SITE_ENV, never from the file.
	Environment Environment `yaml:"-"`
	// BaseDir is the directory holding the configuration file. Relative paths
	// in the configuration resolve against it.
	BaseDir string `yaml:"-"`
}

// TemplatesConfig locates the template tree.
type TemplatesConfig struct {
	Dir        string   `yaml:"dir" validate:"required"`
	Extensions []string `yaml:"extensions,omitempty"`
}

// OutputConfig controls the output directory.
type OutputConfig struct {
	Dir string `yaml:"dir" validate:"required"`
	// Clean removes the output directory before each build.
	Clean bool `yaml:"clean"`
}

// StaticCopy copies a directory into the output tree.
type StaticCopy struct {
	From string `yaml:"from" validate:"required"`
	To   string `yaml:"to"`
}

// CacheConfig configures the data cache wrapped around the remote sources.
type CacheConfig struct {
	// Enabled defaults to true in development and false otherwise.
	Enabled       *bool         `yaml:"enabled,omitempty"`
	Dir           string        `yaml:"dir"`
	Namespace     string        `yaml:"namespace"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl" validate:"gte=0"`
	Backend       string        `yaml:"backend" validate:"omitempty,oneof=file sqlite"`
	CorruptPolicy string        `yaml:"corrupt_policy" validate:"omitempty,oneof=strict lenient"`
}

// SourcesConfig lists the data plugins. Remote sources run inside the cache;
// markdown sources run outside it.
type SourcesConfig struct {
	Contentful   *ContentfulConfig   `yaml:"contentful,omitempty"`
	TicketTailor *TicketTailorConfig `yaml:"tickettailor,omitempty"`
	Eventbrite   *EventbriteConfig   `yaml:"eventbrite,omitempty"`
	Markdown     []MarkdownConfig    `yaml:"markdown,omitempty" validate:"dive"`
	Retry        RetryConfig         `yaml:"retry"`
}

// ContentfulConfig configures the Contentful source.
type ContentfulConfig struct {
	Space       string            `yaml:"space" validate:"required"`
	AccessToken string            `yaml:"access_token" validate:"required"`
	Environment string            `yaml:"environment,omitempty"`
	Host        string            `yaml:"host,omitempty"`
	Sources     []ContentfulEntry `yaml:"sources" validate:"min=1,dive"`
}

// ContentfulEntry maps a content type onto a context key.
type ContentfulEntry struct {
	Key         string `yaml:"key" validate:"required"`
	ContentType string `yaml:"content_type" validate:"required"`
}

// TicketTailorConfig configures the Ticket Tailor source.
type TicketTailorConfig struct {
	Token string `yaml:"token" validate:"required"`
	URL   string `yaml:"url,omitempty" validate:"omitempty,url"`
	Key   string `yaml:"key,omitempty"`
}

// EventbriteConfig configures the Eventbrite source.
type EventbriteConfig struct {
	Token          string `yaml:"token" validate:"required"`
	OrganizationID string `yaml:"organization_id" validate:"required"`
	BaseURL        string `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Key            string `yaml:"key,omitempty"`
	Expand         string `yaml:"expand,omitempty"`
}

// MarkdownConfig loads a directory of markdown files.
type MarkdownConfig struct {
	Dir    string `yaml:"dir" validate:"required"`
	Key    string `yaml:"key" validate:"required"`
	SortBy string `yaml:"sort_by,omitempty"`
}

// RetryConfig controls retries of remote fetches.
type RetryConfig struct {
	Backoff    string        `yaml:"backoff,omitempty" validate:"omitempty,oneof=fixed linear exponential"`
	Initial    time.Duration `yaml:"initial,omitempty"`
	Max        time.Duration `yaml:"max,omitempty"`
	MaxRetries *int          `yaml:"max_retries,omitempty" validate:"omitempty,gte=0"`
}

// TargetConfig is one entry of the targets tree. It is a static target
// (template and dest), a collection generator (collection set, dest holds
// {field} placeholders), or a group (group set).
type TargetConfig struct {
	Template string         `yaml:"template,omitempty" validate:"required_without=Group"`
	Dest     string         `yaml:"dest,omitempty" validate:"required_without=Group"`
	Include  IncludeSpec    `yaml:"include,omitempty"`
	Extra    map[string]any `yaml:"extra,omitempty"`
	Enabled  *bool          `yaml:"enabled,omitempty"`
	// When limits the entry to one environment.
	When string `yaml:"when,omitempty" validate:"omitempty,oneof=development production"`
	// Collection is a dotted context path to a list; one target is emitted per item.
	Collection string `yaml:"collection,omitempty"`
	// Spread is a dotted path inside each item whose map is merged as extra
	// context. Empty merges the whole item.
	Spread string         `yaml:"spread,omitempty"`
	Group  []TargetConfig `yaml:"group,omitempty" validate:"dive"`
}

// IncludeSpec is the YAML form of a context projection: omitted, the "*"
// wildcard, or a list of keys.
type IncludeSpec struct {
	All  bool
	Keys []string
}

// UnmarshalYAML accepts "*", a single key or a sequence of keys.
func (s *IncludeSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v := strings.TrimSpace(node.Value)
		switch v {
		case "*":
			*s = IncludeSpec{All: true}
		case "":
			*s = IncludeSpec{}
		default:
			*s = IncludeSpec{Keys: []string{v}}
		}
		return nil
	case yaml.SequenceNode:
		var keys []string
		if err := node.Decode(&keys); err != nil {
			return err
		}
		*s = IncludeSpec{Keys: keys}
		return nil
	default:
		return fmt.Errorf("line %d: include must be \"*\" or a list of keys", node.Line)
	}
}

// MarshalYAML writes the wildcard as "*".
func (s IncludeSpec) MarshalYAML() (any, error) {
	if s.All {
		return "*", nil
	}
	if len(s.Keys) == 0 {
		return nil, nil
	}
	return s.Keys, nil
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// Dir is the source tree watched for changes.
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce" validate:"gte=0"`
	// MaxDelay bounds how long continuous changes can postpone a rebuild.
	MaxDelay time.Duration `yaml:"max_delay" validate:"gtefield=Debounce"`
	// RefreshInterval periodically rebuilds to pick up remote content. Zero disables it.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty" validate:"gte=0"`
	// MetricsAddr serves Prometheus metrics while watching, e.g. ":9090".
	MetricsAddr string `yaml:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`
}

// NotifyConfig publishes build outcomes to NATS when NATSURL is set.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url,omitempty" validate:"omitempty,url"`
	Subject string `yaml:"subject,omitempty"`
}

// CacheEnabled resolves the cache toggle for the current environment.
func (c *Config) CacheEnabled() bool {
	if c.Cache.Enabled != nil {
		return *c.Cache.Enabled
	}
	return c.Environment == EnvDevelopment
}

// Resolve makes a configured path relative to the configuration file.
// Absolute paths are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.BaseDir == "" {
		return p
	}
	return filepath.Join(c.BaseDir, p)
}

// InitialContext returns the seed context: the configured static values
// plus the environment flags.
func (c *Config) InitialContext() map[string]any {
	out := make(map[string]any, len(c.Context)+2)
	for k, v := range c.Context {
		out[k] = sitectx.DeepCopy(v)
	}
	out["isDevelopment"] = c.Environment.IsDevelopment()
	out["isProduction"] = c.Environment.IsProduction()
	return out
}
