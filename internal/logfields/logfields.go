package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyPlugin     = "plugin"
	KeyTemplate   = "template"
	KeyDest       = "dest"
	KeyCacheKey   = "cache_key"
	KeyCacheState = "cache_state"
	KeyPath       = "path"
	KeyDurationMS = "duration_ms"
	KeyTrigger    = "trigger"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr        { return slog.String(KeyBuildID, id) }
func Plugin(name string) slog.Attr       { return slog.String(KeyPlugin, name) }
func Template(id string) slog.Attr       { return slog.String(KeyTemplate, id) }
func Dest(path string) slog.Attr         { return slog.String(KeyDest, path) }
func CacheKey(key string) slog.Attr      { return slog.String(KeyCacheKey, key) }
func CacheState(state string) slog.Attr  { return slog.String(KeyCacheState, state) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Trigger(reason string) slog.Attr    { return slog.String(KeyTrigger, reason) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	// Classified errors expand into a group through their LogValue.
	return slog.Any(KeyError, err)
}
