package concept

import "strings"

// Well-known property names used by the HL7 and EDQM vocabularies.
const (
	PropSubsumedBy    = "subsumedBy"
	PropNotSelectable = "notSelectable"
	PropStatus        = "status"
	PropSynonymCode   = "synonymCode"
	PropInternalID    = "internalId"
	PropDescription   = "description"
)

// StatusActive is the only status value that makes a concept eligible.
const StatusActive = "active"

// Pair is one (property name, value) pair as supplied by the source.
type Pair struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Raw is a concept as received from a source document.
type Raw struct {
	Code          string `json:"code"`
	Display       string `json:"display"`
	Definition    string `json:"definition,omitempty"`
	HasDefinition bool   `json:"-"`
	Properties    []Pair `json:"properties,omitempty"`
}

// NewRaw builds a raw concept from alternating name/value arguments.
// It panics on an odd number of arguments.
func NewRaw(code, display string, nameValues ...string) Raw {
	if len(nameValues)%2 != 0 {
		panic("concept.NewRaw: odd number of name/value arguments")
	}
	r := Raw{Code: code, Display: display}
	for i := 0; i < len(nameValues); i += 2 {
		r.Properties = append(r.Properties, Pair{Name: nameValues[i], Value: nameValues[i+1]})
	}
	return r
}

// WithDefinition returns a copy of r carrying the given definition.
func (r Raw) WithDefinition(definition string) Raw {
	r.Definition = definition
	r.HasDefinition = true
	return r
}

// Aggregated is a concept whose property pairs were folded into a typed map.
// It is built once per run and not modified afterwards.
type Aggregated struct {
	Code          string
	Display       string
	Definition    string
	HasDefinition bool
	Properties    map[string]Value
}

// Get returns the value of a property.
func (c *Aggregated) Get(name string) (Value, bool) {
	v, ok := c.Properties[name]
	return v, ok
}

// Single returns the value of a single-valued property.
// It reports false when the property is absent or multi-valued.
func (c *Aggregated) Single(name string) (string, bool) {
	v, ok := c.Properties[name]
	if !ok {
		return "", false
	}
	return v.Single()
}

// Multi returns the set of a multi-valued property, or nil when the property
// is absent or single-valued.
func (c *Aggregated) Multi(name string) Set {
	v, ok := c.Properties[name]
	if !ok {
		return nil
	}
	return v.Set()
}

// Flag reports whether a property holds a truthy value.
func (c *Aggregated) Flag(name string) bool {
	v, ok := c.Properties[name]
	return ok && v.Truthy()
}

// NotSelectable reports whether the concept is a category marker.
func (c *Aggregated) NotSelectable() bool {
	return c.Flag(PropNotSelectable)
}

// Active reports whether the concept's status is active. A concept without
// a status is inactive.
func (c *Aggregated) Active() bool {
	status, ok := c.Single(PropStatus)
	return ok && status == StatusActive
}

// truthy follows the FHIR boolean lexical form.
func truthy(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
