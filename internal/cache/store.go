package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/normalization"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// CorruptPolicy decides what happens when a stored entry cannot be decoded.
type CorruptPolicy string

const (
	// PolicyStrict fails the build with a CacheCorruptError.
	PolicyStrict CorruptPolicy = "strict"
	// PolicyLenient logs a warning and treats the entry as missing.
	PolicyLenient CorruptPolicy = "lenient"
)

var policyNormalizer = normalization.NewNormalizer("corrupt_policy", map[string]CorruptPolicy{
	"strict":  PolicyStrict,
	"lenient": PolicyLenient,
}, PolicyStrict)

// ParseCorruptPolicy parses a configured policy; empty selects PolicyStrict.
func ParseCorruptPolicy(s string) (CorruptPolicy, error) {
	return policyNormalizer.Parse(s)
}

// State is the outcome of one WithCache lookup.
type State string

const (
	StateHit     State = "hit"
	StateMiss    State = "miss"
	StateExpired State = "expired"
	StateBypass  State = "bypass"
	StateCorrupt State = "corrupt"
)

// RunFunc produces the payload for a key on a miss.
type RunFunc func(ctx context.Context) (map[string]any, error)

// Store serves cached payloads through a Backend. Reads and writes for one
// key are not locked; callers serialize builds.
type Store struct {
	backend  Backend
	enabled  bool
	policy   CorruptPolicy
	clock    clockwork.Clock
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewStore creates an enabled store with the strict policy and the real clock.
func NewStore(backend Backend) *Store {
	return &Store{
		backend:  backend,
		enabled:  true,
		policy:   PolicyStrict,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
}

// WithEnabled toggles the store. A disabled store always runs and never persists.
func (s *Store) WithEnabled(enabled bool) *Store {
	s.enabled = enabled
	return s
}

// WithPolicy sets the corrupt entry policy.
func (s *Store) WithPolicy(p CorruptPolicy) *Store {
	if p != "" {
		s.policy = p
	}
	return s
}

// WithClock injects the clock used for expiry. Tests pass a fake clock.
func (s *Store) WithClock(c clockwork.Clock) *Store {
	if c != nil {
		s.clock = c
	}
	return s
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithRecorder sets the metrics recorder.
func (s *Store) WithRecorder(recorder metrics.Recorder) *Store {
	if recorder != nil {
		s.recorder = recorder
	}
	return s
}

// Enabled reports whether lookups consult the backend.
func (s *Store) Enabled() bool { return s.enabled }

// WithCache returns the payload cached under key, running run to produce
// and persist it when the entry is missing or expired. The returned map is
// always the result of decoding JSON so hits and misses look the same.
func (s *Store) WithCache(ctx context.Context, key string, ttl time.Duration, run RunFunc) (map[string]any, error) {
	if !s.enabled {
		payload, err := s.produce(ctx, key, run)
		if err != nil {
			return nil, err
		}
		s.report(key, StateBypass)
		return payload, nil
	}

	state := StateMiss
	entry, err := s.backend.Load(ctx, key)
	switch {
	case err == nil:
		if entry.Fresh(s.clock.Now()) {
			payload, decodeErr := entry.Decode()
			if decodeErr == nil {
				s.report(key, StateHit)
				return payload, nil
			}
			if cerr := s.onCorrupt(key, &CorruptEntryError{Key: key, Err: decodeErr}); cerr != nil {
				return nil, cerr
			}
			state = StateCorrupt
		} else {
			state = StateExpired
		}
	case errors.Is(err, ErrNotFound):
	default:
		var corrupt *CorruptEntryError
		if !errors.As(err, &corrupt) {
			return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "read cache entry").
				Fatal().
				WithContext(logfields.KeyCacheKey, key).
				Build()
		}
		if cerr := s.onCorrupt(key, corrupt); cerr != nil {
			return nil, cerr
		}
		state = StateCorrupt
	}

	raw, err := s.run(ctx, key, run)
	if err != nil {
		return nil, err
	}
	fresh := Entry{Key: key, TTL: ttl, ExpiresAt: s.clock.Now().Add(ttl), Payload: raw}
	if err := s.backend.Save(ctx, fresh); err != nil {
		return nil, ferrors.WriteError("persist cache entry").
			WithCause(err).
			WithContext(logfields.KeyCacheKey, key).
			Build()
	}
	s.report(key, state)
	return decodePayload(raw)
}

// List returns the stored entries. Unreadable entries are logged and skipped.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.backend.List(ctx)
	var corrupt *CorruptEntryError
	if err != nil && errors.As(err, &corrupt) {
		s.logger.Warn("Skipping unreadable cache entries", logfields.Error(err))
		return entries, nil
	}
	return entries, err
}

// Clear removes every entry in the store's namespace.
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Clear(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) onCorrupt(key string, corrupt *CorruptEntryError) error {
	s.recorder.IncCacheResult(key, string(StateCorrupt))
	if s.policy == PolicyLenient {
		s.logger.Warn("Ignoring corrupt cache entry",
			logfields.CacheKey(key),
			logfields.Error(corrupt))
		return nil
	}
	return ferrors.CacheCorruptError("cache entry is corrupt").
		WithCause(corrupt).
		WithContext(logfields.KeyCacheKey, key).
		WithContext(logfields.KeyPath, corrupt.Location).
		Build()
}

func (s *Store) produce(ctx context.Context, key string, run RunFunc) (map[string]any, error) {
	raw, err := s.run(ctx, key, run)
	if err != nil {
		return nil, err
	}
	return decodePayload(raw)
}

// run executes the producer and returns its payload as a JSON object.
func (s *Store) run(ctx context.Context, key string, run RunFunc) (json.RawMessage, error) {
	payload, err := run(ctx)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryPlugin, fmt.Sprintf("cache payload for %q is not serializable", key)).
			Fatal().
			WithContext(logfields.KeyCacheKey, key).
			Build()
	}
	return raw, nil
}

func (s *Store) report(key string, state State) {
	s.recorder.IncCacheResult(key, string(state))
	s.logger.Info("Cache lookup", logfields.CacheKey(key), logfields.CacheState(string(state)))
}
