package rules

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a rules file.
type File struct {
	Codelists []*Codelist `yaml:"codelists"`
}

// Load decodes a rules document and registers every codelist on top of
// base. Entries whose name matches a registered codelist replace it.
// A nil base starts from an empty registry.
func Load(r io.Reader, base *Registry) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	out := NewRegistry()
	if base != nil {
		for _, c := range base.All() {
			if err := out.Register(c); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range f.Codelists {
		if c == nil {
			continue
		}
		if err := out.Register(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LoadFile loads a rules file on top of the built-in codelists.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	reg, err := Load(bytes.NewReader(data), Default())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Encode writes the registry's codelists as a rules document.
func Encode(w io.Writer, reg *Registry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(File{Codelists: reg.All()}); err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	return enc.Close()
}
