// Package cache stores the output of expensive data-gathering phases with a
// time-to-live so repeated builds reuse it.
//
// Each key maps to at most one Entry. An entry is served while the injected
// clock is at or before its absolute expiry; after that the owning plugin
// group runs again and the entry is overwritten.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Entry is one persisted cache record.
type Entry struct {
	Key       string
	TTL       time.Duration
	ExpiresAt time.Time
	// Payload is the JSON object produced by the cached plugin group.
	Payload json.RawMessage
}

type entryJSON struct {
	Key       string          `json:"key"`
	TTL       string          `json:"ttl"`
	ExpiresAt time.Time       `json:"expires_at"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalJSON writes the on-disk form {"key","ttl","expires_at","payload"}.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Key:       e.Key,
		TTL:       e.TTL.String(),
		ExpiresAt: e.ExpiresAt.UTC(),
		Payload:   e.Payload,
	})
}

// UnmarshalJSON parses the on-disk form and rejects incomplete records.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Key == "" {
		return errors.New("missing key")
	}
	if raw.ExpiresAt.IsZero() {
		return errors.New("missing expires_at")
	}
	ttl, err := time.ParseDuration(raw.TTL)
	if err != nil {
		return fmt.Errorf("invalid ttl: %w", err)
	}
	*e = Entry{Key: raw.Key, TTL: ttl, ExpiresAt: raw.ExpiresAt, Payload: raw.Payload}
	return nil
}

// Fresh reports whether the entry may still be served at now.
// Expiry is inclusive: an entry is fresh up to and including ExpiresAt.
func (e Entry) Fresh(now time.Time) bool {
	return !now.After(e.ExpiresAt)
}

// Decode parses the payload into a JSON object.
func (e Entry) Decode() (map[string]any, error) {
	return decodePayload(e.Payload)
}

func decodePayload(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty payload")
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if out == nil {
		return nil, errors.New("payload is not an object")
	}
	return out, nil
}

// CorruptEntryError reports a stored record that cannot be decoded.
type CorruptEntryError struct {
	Key      string
	Location string
	Err      error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt cache entry %q at %s: %v", e.Key, e.Location, e.Err)
}

func (e *CorruptEntryError) Unwrap() error { return e.Err }
