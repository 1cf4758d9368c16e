package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/gofhir/codelists/rules"
	"github.com/gofhir/codelists/source"
)

// SourceChain implements SourceLoader by trying multiple loaders in order.
// A loader answering ErrNotFound hands over to the next one; any other
// error stops the chain.
type SourceChain struct {
	loaders []SourceLoader
}

// NewSourceChain creates a new source chain.
func NewSourceChain(loaders ...SourceLoader) *SourceChain {
	return &SourceChain{loaders: loaders}
}

// Load tries each loader until one succeeds.
func (c *SourceChain) Load(ctx context.Context, list *rules.Codelist) (*source.Document, error) {
	for _, loader := range c.loaders {
		doc, err := loader.Load(ctx, list)
		if err == nil && doc != nil {
			return doc, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", list.Name, ErrNotFound)
}

// Add appends a loader to the chain.
func (c *SourceChain) Add(loader SourceLoader) {
	c.loaders = append(c.loaders, loader)
}

// Mirror loads codelists from local copies named <dir>/<codelist>.json,
// for offline runs and pinned releases.
type Mirror struct {
	dir    string
	loader *source.Loader
}

// NewMirror creates a mirror over dir. A nil loader uses source.NewLoader(nil).
func NewMirror(dir string, loader *source.Loader) *Mirror {
	if loader == nil {
		loader = source.NewLoader(nil)
	}
	return &Mirror{dir: dir, loader: loader}
}

// Path returns the mirror file of list.
func (m *Mirror) Path(list *rules.Codelist) string {
	return filepath.Join(m.dir, list.Name+".json")
}

// Load reads the mirrored document. A missing file is ErrNotFound; the
// codelist's precondition still applies to the copy.
func (m *Mirror) Load(ctx context.Context, list *rules.Codelist) (*source.Document, error) {
	local := list.Clone()
	local.Source.URL = m.Path(list)

	doc, err := m.loader.Load(ctx, local)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", list.Name, ErrNotFound)
	}
	return doc, err
}
