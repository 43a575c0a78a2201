//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outreach", "secrets.json")
	if _, err := fileSecretGet(path, "outreach", "api_token"); err == nil {
		t.Error("expected error before file exists")
	}
	if err := fileSecretSet(path, "outreach", "api_token", "tok"); err != nil {
		t.Fatal(err)
	}
	if err := fileSecretSet(path, "outreach", "calendly.api_key", "cal"); err != nil {
		t.Fatal(err)
	}
	got, err := fileSecretGet(path, "outreach", "api_token")
	if err != nil || got != "tok" {
		t.Errorf("fileSecretGet = %q, %v", got, err)
	}
	if _, err := fileSecretGet(path, "other", "api_token"); err == nil {
		t.Error("expected error for unknown service")
	}
}

func TestFileSecretsCorruptFileKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := fileSecretSet(path, "outreach", "api_token", "tok"); err == nil {
		t.Fatal("expected error writing over a corrupt secrets file")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "{broken" {
		t.Errorf("corrupt file was rewritten: %q", raw)
	}
}
