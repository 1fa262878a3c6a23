// Package prefs is the persisted key/value preference store shared by the
// migration runner and the imported-book library.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
)

// Preference keys.
const (
	KeyAppVersion    = "AppVersion"
	KeyBookmarks     = "bookmarks"
	KeyExternalBooks = "externalBooks"
)

// Drivers understood by Open.
const (
	DriverSQLite = "sqlite"
	DriverTOML   = "toml"
	DriverMemory = "memory"
)

// Store is a string key/value store. Values are JSON-encoded by callers.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open creates the store for driver at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return OpenSQLite(path)
	case DriverTOML:
		return OpenTOML(path)
	case DriverMemory, "":
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("prefs: unknown driver %q", driver)
}

// GetJSON decodes the value stored under key into v. It reports false when
// the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return true, fmt.Errorf("prefs: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("prefs: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw))
}
