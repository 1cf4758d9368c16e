// Package sink persists normalized codelists.
//
// A Sink receives the complete result of one run and replaces whatever it
// held for that codelist; nothing is merged with earlier output.
package sink

import (
	"context"
	"errors"

	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/rules"
)

// Sink persists the records of one codelist.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Write replaces the stored records of list with result.
	Write(ctx context.Context, list *rules.Codelist, result *cl.Result) error
}

// Multi writes to every sink in order and joins their errors.
type Multi []Sink

// Name returns the sink name.
func (m Multi) Name() string {
	return "multi"
}

// Write writes result to every sink, even after one fails.
func (m Multi) Write(ctx context.Context, list *rules.Codelist, result *cl.Result) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, list, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
