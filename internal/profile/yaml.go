package profile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a sender profile document. Unknown fields are rejected.
func ParseYAML(r io.Reader) (Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var p Profile
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("decoding profile yaml: %w", err)
	}
	return p, nil
}

// Import stores every non-empty field of p and returns the keys written.
// Fields absent from p keep their stored values.
func (m *Manager) Import(p Profile) ([]string, error) {
	fields := p.Fields()
	if err := m.SetFields(fields); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// ImportFile reads a YAML profile from path and imports it.
func (m *Manager) ImportFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening profile file: %w", err)
	}
	defer f.Close()

	p, err := ParseYAML(f)
	if err != nil {
		return nil, err
	}
	return m.Import(p)
}
