package source

import (
	"context"
	"fmt"

	"github.com/gofhir/codelists/rules"
)

// Loader fetches, guards and decodes the source document of a codelist.
type Loader struct {
	fetcher       *Fetcher
	preconditions *Preconditions
}

// NewLoader creates a loader. A nil fetcher uses NewFetcher().
func NewLoader(fetcher *Fetcher) *Loader {
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	return &Loader{
		fetcher:       fetcher,
		preconditions: NewPreconditions(),
	}
}

// Load returns the decoded document of list. Any failure is fatal for the
// codelist.
func (l *Loader) Load(ctx context.Context, list *rules.Codelist) (*Document, error) {
	src := list.Source
	if src.Format != "" && src.Format != rules.FormatFHIRCodeSystem {
		return nil, fmt.Errorf("%s: unsupported source format %q", list.Name, src.Format)
	}

	data, err := l.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", list.Name, err)
	}

	if err := l.preconditions.Check(src.Precondition, data); err != nil {
		return nil, fmt.Errorf("%s: %w", list.Name, err)
	}

	// only a hierarchy reads nested concepts as children
	var opts []DecodeOption
	if !list.Policy.Classify {
		opts = append(opts, TopLevelOnly())
	}
	doc, err := DecodeCodeSystem(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", list.Name, err)
	}
	return doc, nil
}
