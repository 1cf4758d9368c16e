package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/codelists/concept"
)

// ErrNotCodeSystem is returned when a document is not a FHIR CodeSystem.
var ErrNotCodeSystem = errors.New("document is not a CodeSystem")

// Document is a decoded CodeSystem.
type Document struct {
	// URL is the canonical URL of the CodeSystem
	URL string

	// Concepts are the concepts in document order, nested ones flattened
	// depth-first after their parent
	Concepts []concept.Raw
}

type decodeOptions struct {
	topLevelOnly bool
}

// DecodeOption configures DecodeCodeSystem.
type DecodeOption func(*decodeOptions)

// TopLevelOnly reads only the top-level concept array and ignores nested
// concepts.
func TopLevelOnly() DecodeOption {
	return func(o *decodeOptions) {
		o.topLevelOnly = true
	}
}

// DecodeCodeSystem parses a FHIR R4 CodeSystem.
//
// Nested concepts follow their parent and receive a subsumedBy pair naming
// it, unless they already declare one or TopLevelOnly is set. Concepts
// without a code are skipped.
func DecodeCodeSystem(data []byte, opts ...DecodeOption) (*Document, error) {
	var o decodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var header struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if header.ResourceType != "CodeSystem" {
		return nil, fmt.Errorf("%w: resourceType %q", ErrNotCodeSystem, header.ResourceType)
	}

	var cs r4.CodeSystem
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("failed to parse CodeSystem: %w", err)
	}

	doc := &Document{}
	if cs.Url != nil {
		doc.URL = *cs.Url
	}

	var err error
	doc.Concepts, err = flattenConcepts(cs.Concept, "", !o.topLevelOnly, nil)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func flattenConcepts(concepts []r4.CodeSystemConcept, parent string, nested bool, out []concept.Raw) ([]concept.Raw, error) {
	for i := range concepts {
		c := &concepts[i]
		if c.Code == nil {
			continue
		}

		raw := concept.Raw{Code: *c.Code}
		if c.Display != nil {
			raw.Display = *c.Display
		}
		if c.Definition != nil {
			raw = raw.WithDefinition(*c.Definition)
		}

		hasParent := false
		for j := range c.Property {
			prop := &c.Property[j]
			if prop.Code == nil {
				continue
			}
			var value string
			if prop.ValueCode != nil {
				value = *prop.ValueCode
			} else {
				v, err := propertyValue(prop)
				if err != nil {
					return nil, fmt.Errorf("concept %q: property %q: %w", raw.Code, *prop.Code, err)
				}
				value = v
			}
			if *prop.Code == concept.PropSubsumedBy && value == parent {
				hasParent = true
			}
			raw.Properties = append(raw.Properties, concept.Pair{Name: *prop.Code, Value: value})
		}
		if parent != "" && !hasParent {
			raw.Properties = append(raw.Properties, concept.Pair{Name: concept.PropSubsumedBy, Value: parent})
		}

		out = append(out, raw)

		if nested && len(c.Concept) > 0 {
			var err error
			out, err = flattenConcepts(c.Concept, raw.Code, nested, out)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// propertyValue renders the value[x] of a concept property other than
// valueCode as text. Strings are taken as is, booleans and numbers in their
// JSON lexical form, and Codings by their code.
func propertyValue(prop any) (string, error) {
	data, err := json.Marshal(prop)
	if err != nil {
		return "", err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", err
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if strings.HasPrefix(k, "value") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", errors.New("no value")
	}
	sort.Strings(keys)

	return renderValue(fields[keys[0]])
}

func renderValue(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", errors.New("empty value")
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{':
		var coding struct {
			Code *string `json:"code"`
		}
		if err := json.Unmarshal(raw, &coding); err != nil {
			return "", err
		}
		if coding.Code == nil {
			return "", errors.New("coding without code")
		}
		return *coding.Code, nil
	default:
		return string(raw), nil
	}
}
