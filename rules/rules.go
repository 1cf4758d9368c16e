// Package rules holds the static, per-codelist configuration consumed by a
// normalization run: the property schema, the expected property names, the
// synonym override table and the output policy.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofhir/codelists/concept"
)

// DescriptionSource selects where a record's description comes from.
type DescriptionSource string

const (
	// DescriptionNone omits the description column.
	DescriptionNone DescriptionSource = "none"
	// DescriptionDefinition uses the concept definition.
	DescriptionDefinition DescriptionSource = "definition"
	// DescriptionProperty uses a single-valued property named by DescriptionProperty.
	DescriptionProperty DescriptionSource = "property"
)

// Source formats understood by the source package.
const (
	FormatFHIRCodeSystem = "fhir-codesystem"
)

// Source describes where a codelist's document is published.
type Source struct {
	// URL is an http(s) URL, a file:// URL or a local path
	URL string `yaml:"url,omitempty"`
	// Format of the document
	Format string `yaml:"format,omitempty"`
	// Precondition is a FHIRPath expression that must hold on the document
	Precondition string `yaml:"precondition,omitempty"`
}

// Policy is the finalization policy of the output projector.
type Policy struct {
	// Classify enables the hierarchy classifier
	Classify bool `yaml:"classify"`
	// CapitalizeTitle upper-cases the first character of the title
	CapitalizeTitle bool `yaml:"capitalizeTitle,omitempty"`
	// ExcludeContaining drops codes containing this substring
	ExcludeContaining string `yaml:"excludeContaining,omitempty"`
	// ExemptCodes are literal codes kept despite ExcludeContaining
	ExemptCodes []string `yaml:"exemptCodes,omitempty"`
	// Description selects the description source
	Description DescriptionSource `yaml:"description,omitempty"`
	// DescriptionProperty names the property used with DescriptionProperty
	DescriptionProperty string `yaml:"descriptionProperty,omitempty"`
}

// SynonymOverride names the canonical code of a synonym group and the codes
// it supersedes.
type SynonymOverride struct {
	Keep string   `yaml:"keep"`
	Drop []string `yaml:"drop"`
}

// Codelist is the complete static configuration of one codelist.
type Codelist struct {
	Name        string            `yaml:"name"`
	File        string            `yaml:"file,omitempty"`
	Source      Source            `yaml:"source"`
	MultiValued []string          `yaml:"multiValued,omitempty"`
	Expected    []string          `yaml:"expected,omitempty"`
	Synonyms    []SynonymOverride `yaml:"synonyms,omitempty"`
	Policy      Policy            `yaml:"policy"`
}

// ErrInvalidCodelist is returned by Validate.
var ErrInvalidCodelist = errors.New("invalid codelist rules")

// IsMultiValued reports whether name is declared multi-valued.
func (c *Codelist) IsMultiValued(name string) bool {
	for _, m := range c.MultiValued {
		if m == name {
			return true
		}
	}
	return false
}

// DeclaresSynonyms reports whether the codelist's schema has a synonymCode
// property, which enables the synonym resolver.
func (c *Codelist) DeclaresSynonyms() bool {
	return c.IsMultiValued(concept.PropSynonymCode)
}

// ExpectedSet returns the expected property names as a set.
func (c *Codelist) ExpectedSet() concept.Set {
	return concept.NewSet(c.Expected...)
}

// Columns returns the header row of the codelist's delimited output.
func (c *Codelist) Columns() []string {
	if c.Policy.Description == DescriptionNone || c.Policy.Description == "" {
		return []string{"Code", "Title"}
	}
	return []string{"Code", "Title", "Description"}
}

// Exempt reports whether code is exempt from the exclusion rule.
func (c *Codelist) Exempt(code string) bool {
	for _, e := range c.Policy.ExemptCodes {
		if e == code {
			return true
		}
	}
	return false
}

// Excluded reports whether the exclusion rule drops code.
func (c *Codelist) Excluded(code string) bool {
	sub := c.Policy.ExcludeContaining
	if sub == "" || !strings.Contains(code, sub) {
		return false
	}
	return !c.Exempt(code)
}

// OutputFile returns the file name the CSV sink writes to.
func (c *Codelist) OutputFile() string {
	if c.File != "" {
		return c.File
	}
	return c.Name + ".csv"
}

// Validate checks the rules for internal consistency.
func (c *Codelist) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCodelist)
	}
	switch c.Policy.Description {
	case "", DescriptionNone, DescriptionDefinition:
	case DescriptionProperty:
		if c.Policy.DescriptionProperty == "" {
			return fmt.Errorf("%w: %s: description property not named", ErrInvalidCodelist, c.Name)
		}
	default:
		return fmt.Errorf("%w: %s: unknown description source %q", ErrInvalidCodelist, c.Name, c.Policy.Description)
	}
	if c.Source.Format != "" && c.Source.Format != FormatFHIRCodeSystem {
		return fmt.Errorf("%w: %s: unsupported source format %q", ErrInvalidCodelist, c.Name, c.Source.Format)
	}
	if c.Policy.Classify && !c.IsMultiValued(concept.PropSubsumedBy) {
		return fmt.Errorf("%w: %s: classification without a multi-valued %s property",
			ErrInvalidCodelist, c.Name, concept.PropSubsumedBy)
	}
	if len(c.Synonyms) > 0 && !c.DeclaresSynonyms() {
		return fmt.Errorf("%w: %s: synonym overrides without a multi-valued %s property",
			ErrInvalidCodelist, c.Name, concept.PropSynonymCode)
	}
	for _, o := range c.Synonyms {
		if o.Keep == "" {
			return fmt.Errorf("%w: %s: synonym override without a kept code", ErrInvalidCodelist, c.Name)
		}
		for _, d := range o.Drop {
			if d == o.Keep {
				return fmt.Errorf("%w: %s: synonym override keeps and drops %q", ErrInvalidCodelist, c.Name, d)
			}
		}
	}
	return nil
}

// Clone returns a deep copy of c.
func (c *Codelist) Clone() *Codelist {
	out := *c
	out.MultiValued = append([]string(nil), c.MultiValued...)
	out.Expected = append([]string(nil), c.Expected...)
	out.Policy.ExemptCodes = append([]string(nil), c.Policy.ExemptCodes...)
	out.Synonyms = make([]SynonymOverride, len(c.Synonyms))
	for i, o := range c.Synonyms {
		out.Synonyms[i] = SynonymOverride{Keep: o.Keep, Drop: append([]string(nil), o.Drop...)}
	}
	return &out
}
