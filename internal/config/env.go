package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/normalization"
)

// EnvVar selects the build environment.
const EnvVar = "SITE_ENV"

// Environment is the build environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

var envNormalizer = normalization.NewNormalizer("environment", map[string]Environment{
	"development": EnvDevelopment,
	"dev":         EnvDevelopment,
	"production":  EnvProduction,
	"prod":        EnvProduction,
}, EnvProduction)

// ParseEnvironment parses SITE_ENV. Empty means production.
func ParseEnvironment(s string) (Environment, error) {
	return envNormalizer.Parse(s)
}

// IsDevelopment reports whether e is the development environment.
func (e Environment) IsDevelopment() bool { return e == EnvDevelopment }

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool { return e == EnvProduction }

// LoadEnvFiles loads .env and .env.local from dir. Variables already present
// in the process environment are never overwritten, and .env takes
// precedence over .env.local. Missing files are skipped.
func LoadEnvFiles(dir string) ([]string, error) {
	var loaded []string
	for _, name := range []string{".env", ".env.local"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, err
		}
		loaded = append(loaded, path)
		slog.Debug("Loaded environment file", "path", path)
	}
	return loaded, nil
}
