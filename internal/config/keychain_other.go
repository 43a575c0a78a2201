//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// secretsFile maps service -> account -> value.
type secretsFile map[string]map[string]string

type platformKeychain struct{}

func (platformKeychain) Get(service, account string) (string, error) {
	return fileSecretGet(secretsFilePath(), service, account)
}

func (platformKeychain) Set(service, account, value string) error {
	return fileSecretSet(secretsFilePath(), service, account, value)
}

func secretHint() string {
	return " (stored in " + secretsFilePath() + ")"
}

func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"), "."), "secrets.json")
}

func readSecrets(path string) (secretsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s secretsFile
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", path, err)
	}
	return s, nil
}

func fileSecretGet(path, service, account string) (string, error) {
	s, err := readSecrets(path)
	if err != nil {
		return "", fmt.Errorf("secret store not available: %w", err)
	}
	val, ok := s[service][account]
	if !ok {
		return "", fmt.Errorf("secret %s/%s not found", service, account)
	}
	return val, nil
}

// fileSecretSet never rewrites a secrets file it cannot parse.
func fileSecretSet(path, service, account, value string) error {
	s, err := readSecrets(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s = secretsFile{}
	case err != nil:
		return err
	case s == nil:
		s = secretsFile{}
	}
	if s[service] == nil {
		s[service] = map[string]string{}
	}
	s[service][account] = value

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("writing secrets: %w", err)
	}
	return os.Rename(tmp, path)
}
