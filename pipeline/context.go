// Package pipeline runs the normalization stages of one codelist in order
// over a shared run Context.
package pipeline

import (
	cl "github.com/gofhir/codelists"
	"github.com/gofhir/codelists/concept"
	"github.com/gofhir/codelists/rules"
)

// Context holds all state of a single normalization run. Each stage reads
// the output of the stages before it and fills its own fields; nothing in a
// Context is shared between runs.
type Context struct {
	// Rules is the static configuration of the codelist
	Rules *rules.Codelist

	// Raw holds the concepts as received, in source order
	Raw []concept.Raw

	// Concepts holds the aggregated concepts, in source order
	Concepts []*concept.Aggregated

	// Observed holds every property name seen in the source
	Observed concept.Set

	// NotSelectable holds the codes of the category markers
	NotSelectable concept.Set

	// Eligible holds the concepts that passed classification
	Eligible []*concept.Aggregated

	// Resolved holds the concepts left after synonym resolution
	Resolved []*concept.Aggregated

	// Result accumulates the run outcome
	Result *cl.Result

	// Options holds run options accessible to stages
	Options *ContextOptions
}

// ContextOptions holds the engine options visible to stages.
type ContextOptions struct {
	DetectDrift     bool
	ReportDrops     bool
	WarnOnEmptyList bool
}

// DefaultContextOptions mirrors the engine defaults.
func DefaultContextOptions() *ContextOptions {
	return &ContextOptions{
		DetectDrift:     true,
		ReportDrops:     true,
		WarnOnEmptyList: true,
	}
}

// NewContext creates a run context for one codelist.
func NewContext(list *rules.Codelist, raw []concept.Raw) *Context {
	return &Context{
		Rules:   list,
		Raw:     raw,
		Options: DefaultContextOptions(),
	}
}

// Codelist returns the codelist name.
func (c *Context) Codelist() string {
	if c.Rules == nil {
		return ""
	}
	return c.Rules.Name
}
