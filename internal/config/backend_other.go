//go:build !darwin

package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

func defaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "outreach-data")
}

// xdgDir resolves $env/outreach, falling back to ~/rel/outreach and then to
// fallback when no home directory is known.
func xdgDir(env, rel, fallback string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, "outreach")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallback
	}
	return filepath.Join(home, rel, "outreach")
}

// yamlBackend keeps settings as a flat YAML mapping of dotted keys in
// $XDG_CONFIG_HOME/outreach/config.yaml.
type yamlBackend struct {
	path string
	data map[string]any
}

func newPlatformBackend() Backend {
	return openYAMLBackend(filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config", "."), "config.yaml"))
}

// openYAMLBackend reads path if it exists. An unreadable file is logged and
// treated as empty so the defaults apply.
func openYAMLBackend(path string) *yamlBackend {
	b := &yamlBackend{path: path, data: map[string]any{}}
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
	default:
		if err := yaml.Unmarshal(raw, &b.data); err != nil {
			slog.Warn("config file malformed, using defaults", "path", path, "error", err)
			b.data = map[string]any{}
		}
		if b.data == nil {
			b.data = map[string]any{}
		}
	}
	return b
}

// save replaces the file atomically.
func (b *yamlBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := yaml.Marshal(b.data)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return os.Rename(tmp, b.path)
}

func (b *yamlBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	if s, isStr := v.(string); isStr {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *yamlBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case float64:
		if n != math.Trunc(n) || n < math.MinInt || n > math.MaxInt {
			return 0, true, fmt.Errorf("%s: %v is not an integer", key, n)
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, true, fmt.Errorf("%s: %w", key, err)
		}
		return i, true, nil
	}
	return 0, true, fmt.Errorf("%s: unexpected %T", key, v)
}

func (b *yamlBackend) SetString(key, val string) error {
	b.data[key] = val
	return b.save()
}

func (b *yamlBackend) SetInt(key string, val int) error {
	b.data[key] = val
	return b.save()
}

func (b *yamlBackend) Delete(key string) error {
	if _, ok := b.data[key]; !ok {
		return nil
	}
	delete(b.data, key)
	return b.save()
}
