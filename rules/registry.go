package rules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gofhir/codelists/concept"
)

// Built-in codelist names.
const (
	AdministrationRoute = "administrationRoute"
	Container           = "container"
	DosageForm          = "dosageForm"
)

// ErrUnknownCodelist is returned for a name the registry does not hold.
var ErrUnknownCodelist = errors.New("unknown codelist")

// Registry holds codelist rules keyed by name. It is safe for concurrent
// reads; callers receive clones and never mutate registered rules.
type Registry struct {
	mu    sync.RWMutex
	lists map[string]*Codelist
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{lists: make(map[string]*Codelist)}
}

// Register adds or replaces the rules for c.Name.
func (r *Registry) Register(c *Codelist) error {
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lists[c.Name]; !ok {
		r.order = append(r.order, c.Name)
	}
	r.lists[c.Name] = c.Clone()
	return nil
}

// Get returns a copy of the rules for name.
func (r *Registry) Get(name string) (*Codelist, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.lists[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodelist, name)
	}
	return c.Clone(), nil
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns copies of every registered codelist in registration order.
func (r *Registry) All() []*Codelist {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Codelist, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.lists[name].Clone())
	}
	return out
}

// Len returns the number of registered codelists.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lists)
}

// Default returns a registry holding the built-in codelists.
func Default() *Registry {
	r := NewRegistry()
	for _, c := range builtins() {
		if err := r.Register(c); err != nil {
			panic(fmt.Sprintf("rules: invalid built-in %s: %v", c.Name, err))
		}
	}
	return r
}

func builtins() []*Codelist {
	return []*Codelist{
		{
			// EDQM Standard Terms, routes and methods of administration.
			// The source location is deployment specific and comes from the rules file.
			Name:   AdministrationRoute,
			File:   "administrationRoute.csv",
			Source: Source{Format: FormatFHIRCodeSystem},
			MultiValued: []string{
				concept.PropSubsumedBy,
				concept.PropSynonymCode,
			},
			Expected: []string{
				concept.PropSubsumedBy,
				concept.PropNotSelectable,
				concept.PropStatus,
				concept.PropSynonymCode,
				concept.PropInternalID,
			},
			Policy: Policy{
				Classify:        true,
				CapitalizeTitle: true,
				Description:     DescriptionDefinition,
			},
		},
		{
			// https://terminology.hl7.org/CodeSystem/medicationknowledge-package-type/
			Name: Container,
			File: "container.csv",
			Source: Source{
				URL:          "https://terminology.hl7.org/CodeSystem-medicationknowledge-package-type.json",
				Format:       FormatFHIRCodeSystem,
				Precondition: "CodeSystem.url = 'http://terminology.hl7.org/CodeSystem/medicationknowledge-package-type'",
			},
			Policy: Policy{
				Description: DescriptionNone,
			},
		},
		{
			// https://terminology.hl7.org/CodeSystem/v3-orderableDrugForm/
			Name: DosageForm,
			File: "dosageForm.csv",
			Source: Source{
				URL:          "https://terminology.hl7.org/CodeSystem-v3-orderableDrugForm.json",
				Format:       FormatFHIRCodeSystem,
				Precondition: "CodeSystem.url = 'http://terminology.hl7.org/CodeSystem/v3-orderableDrugForm'",
			},
			MultiValued: []string{concept.PropSubsumedBy},
			Expected: []string{
				concept.PropSubsumedBy,
				concept.PropNotSelectable,
				concept.PropStatus,
				concept.PropInternalID,
			},
			Policy: Policy{
				Classify: true,
				// SPRY codes are variants of the spray form; only the family head is listed.
				ExcludeContaining: "SPRY",
				ExemptCodes:       []string{"SPRY"},
				Description:       DescriptionDefinition,
			},
		},
	}
}
