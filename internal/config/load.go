package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

const (
	defaultTemplatesDir = "templates"
	defaultOutputDir    = "dist"
	defaultCacheDir     = ".cache/sitebuilder"
	defaultCacheKey     = "remote-data"
	defaultCacheTTL     = 24 * time.Hour
	defaultDebounce     = 300 * time.Millisecond
	defaultMaxDelay     = 5 * time.Second
	defaultNATSSubject  = "sitebuilder.builds"
)

// Load reads and validates the configuration at path. The environment is
// taken from SITE_ENV after the .env files next to the configuration have
// been applied.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	baseDir := filepath.Dir(path)
	if _, err := LoadEnvFiles(baseDir); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to load .env file").
			WithContext("dir", baseDir).Build()
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ferrors.ConfigError("configuration file not found").
			WithContext("path", path).
			UserAction().
			Build()
	}
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read configuration").
			WithContext("path", path).Build()
	}

	env, err := ParseEnvironment(os.Getenv(EnvVar))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid "+EnvVar).Build()
	}

	cfg, err := Parse(data, env)
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = baseDir
	return cfg, nil
}

// Parse decodes, defaults and validates a configuration document. ${VAR}
// references are expanded from the process environment first.
func Parse(data []byte, env Environment) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse configuration").Build()
	}
	cfg.Environment = env
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = EnvProduction
	}
	if c.Templates.Dir == "" {
		c.Templates.Dir = defaultTemplatesDir
	}
	if c.Output.Dir == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = defaultCacheDir
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = "default"
	}
	if c.Cache.Key == "" {
		c.Cache.Key = defaultCacheKey
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaultCacheTTL
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.CorruptPolicy == "" {
		c.Cache.CorruptPolicy = "strict"
	}
	if c.Watch.Dir == "" {
		c.Watch.Dir = "."
	}
	if c.Watch.Debounce == 0 {
		c.Watch.Debounce = defaultDebounce
	}
	if c.Watch.MaxDelay == 0 {
		c.Watch.MaxDelay = max(defaultMaxDelay, c.Watch.Debounce)
	}
	if c.Notify.NATSURL != "" && c.Notify.Subject == "" {
		c.Notify.Subject = defaultNATSSubject
	}
}

var validate = validator.New()

// Validate checks struct constraints and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryValidation, "invalid configuration").
			WithContext("fields", describeValidation(err)).
			UserAction().
			Build()
	}
	for i := range c.Targets {
		if err := validateTarget(&c.Targets[i], fmt.Sprintf("targets[%d]", i)); err != nil {
			return err
		}
	}
	return nil
}

func validateTarget(t *TargetConfig, path string) error {
	if len(t.Group) > 0 {
		if t.Template != "" || t.Dest != "" || t.Collection != "" {
			return ferrors.ValidationError("a group entry cannot also declare template, dest or collection").
				WithContext("target", path).Build()
		}
		for i := range t.Group {
			if err := validateTarget(&t.Group[i], fmt.Sprintf("%s.group[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	if t.Collection == "" && strings.Contains(t.Dest, "{") {
		return ferrors.ValidationError("dest placeholders require a collection").
			WithContext("target", path).
			WithContext("dest", t.Dest).
			Build()
	}
	if t.Spread != "" && t.Collection == "" {
		return ferrors.ValidationError("spread requires a collection").
			WithContext("target", path).Build()
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
