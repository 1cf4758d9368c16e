// Package service wires sources, the normalization engine and sinks into the
// update workflow.
package service

import (
	"context"
	"errors"

	"github.com/gofhir/codelists/rules"
	"github.com/gofhir/codelists/source"
)

// ErrNotFound is returned when a loader holds no document for a codelist.
var ErrNotFound = errors.New("source document not found")

// SourceLoader returns the decoded source document of a codelist.
// *source.Loader satisfies it.
type SourceLoader interface {
	Load(ctx context.Context, list *rules.Codelist) (*source.Document, error)
}

// SourceLoaderFunc adapts a function to SourceLoader.
type SourceLoaderFunc func(ctx context.Context, list *rules.Codelist) (*source.Document, error)

// Load calls f.
func (f SourceLoaderFunc) Load(ctx context.Context, list *rules.Codelist) (*source.Document, error) {
	return f(ctx, list)
}
