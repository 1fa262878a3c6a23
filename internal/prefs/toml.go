package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	toml "github.com/pelletier/go-toml/v2"
)

// TOML stores preferences as a flat table in one file. Every write takes an
// exclusive lock on path + ".lock" and replaces the file atomically.
type TOML struct {
	path string
	lock *flock.Flock
}

var _ Store = (*TOML)(nil)

// OpenTOML prepares a file-backed store. A missing file reads as empty.
func OpenTOML(path string) (*TOML, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("prefs: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("prefs: create dir: %w", err)
	}
	return &TOML{path: abs, lock: flock.New(abs + ".lock")}, nil
}

func (t *TOML) Get(_ context.Context, key string) (string, bool, error) {
	if err := t.lock.RLock(); err != nil {
		return "", false, fmt.Errorf("prefs: lock: %w", err)
	}
	defer t.lock.Unlock()

	values, err := t.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (t *TOML) Set(_ context.Context, key, value string) error {
	return t.mutate(func(values map[string]string) { values[key] = value })
}

func (t *TOML) Delete(_ context.Context, key string) error {
	return t.mutate(func(values map[string]string) { delete(values, key) })
}

// Close releases the lock file handle.
func (t *TOML) Close() error {
	return t.lock.Close()
}

func (t *TOML) mutate(fn func(map[string]string)) error {
	if err := t.lock.Lock(); err != nil {
		return fmt.Errorf("prefs: lock: %w", err)
	}
	defer t.lock.Unlock()

	values, err := t.read()
	if err != nil {
		return err
	}
	fn(values)
	return t.write(values)
}

func (t *TOML) read() (map[string]string, error) {
	values := map[string]string{}
	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read: %w", err)
	}
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("prefs: parse %s: %w", t.path, err)
	}
	return values, nil
}

// write replaces the file: tmp file, fsync, rename.
func (t *TOML) write(values map[string]string) error {
	data, err := toml.Marshal(values)
	if err != nil {
		return fmt.Errorf("prefs: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(t.path), ".prefs-tmp-*")
	if err != nil {
		return fmt.Errorf("prefs: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("prefs: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("prefs: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("prefs: close temp: %w", err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		return fmt.Errorf("prefs: rename: %w", err)
	}
	success = true
	return nil
}
