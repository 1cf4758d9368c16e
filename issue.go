package codelists

import (
	"sort"
	"strings"
)

// IssueSeverity represents the severity of a normalization issue.
// Values follow OperationOutcome.issue.severity in FHIR.
type IssueSeverity string

const (
	// SeverityFatal indicates the run was aborted.
	SeverityFatal IssueSeverity = "fatal"
	// SeverityError indicates data that could not be normalized.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates an advisory finding that a maintainer should review.
	SeverityWarning IssueSeverity = "warning"
	// SeverityInformation indicates informational feedback.
	SeverityInformation IssueSeverity = "information"
)

// IssueType represents the type of a normalization issue.
// Values follow OperationOutcome.issue.code in FHIR.
type IssueType string

const (
	// IssueTypeConflict indicates contradictory values in the source.
	IssueTypeConflict IssueType = "conflict"
	// IssueTypeInformational indicates informational content.
	IssueTypeInformational IssueType = "informational"
	// IssueTypeBusinessRule indicates a rule table did not cover the data.
	IssueTypeBusinessRule IssueType = "business-rule"
	// IssueTypeNotSupported indicates the source uses something not configured.
	IssueTypeNotSupported IssueType = "not-supported"
	// IssueTypeProcessing indicates a processing error.
	IssueTypeProcessing IssueType = "processing"
)

// IssueKind classifies the finding on the diagnostic channel.
type IssueKind string

const (
	// KindSchemaDrift is reported when the source uses property names the
	// codelist does not expect.
	KindSchemaDrift IssueKind = "schema-drift"
	// KindUnresolvedSynonym is reported when a synonym pair has no override.
	KindUnresolvedSynonym IssueKind = "unresolved-synonym"
	// KindSynonymDropped is reported for every code an override removes.
	KindSynonymDropped IssueKind = "synonym-dropped"
	// KindPropertyConflict is reported when a run aborts on a conflict.
	KindPropertyConflict IssueKind = "property-conflict"
)

// Issue is a single structured event on the diagnostic channel.
type Issue struct {
	// Severity of the issue
	Severity IssueSeverity `json:"severity"`

	// Code is the FHIR issue type
	Code IssueType `json:"code"`

	// Kind identifies what was found
	Kind IssueKind `json:"kind"`

	// Codelist is the name of the codelist being normalized
	Codelist string `json:"codelist"`

	// Diagnostics contains a human-readable description
	Diagnostics string `json:"diagnostics,omitempty"`

	// Payload carries the codes or property names the issue refers to
	Payload []string `json:"payload,omitempty"`

	// Stage is the pipeline stage that generated this issue
	Stage string `json:"stage,omitempty"`

	// RunID identifies the normalization run
	RunID string `json:"runId,omitempty"`

	// MessageID is the identifier from the diagnostic catalog
	MessageID string `json:"messageId,omitempty"`
}

// IsError returns true if this is an error or fatal issue.
func (i Issue) IsError() bool {
	return i.Severity == SeverityError || i.Severity == SeverityFatal
}

// IsWarning returns true if this is a warning.
func (i Issue) IsWarning() bool {
	return i.Severity == SeverityWarning
}

// String returns a human-readable representation of the issue.
func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(string(i.Severity))
	b.WriteString(": ")
	if i.Codelist != "" {
		b.WriteString(i.Codelist)
		b.WriteString(": ")
	}
	b.WriteString(i.Diagnostics)
	if len(i.Payload) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(i.Payload, ", "))
		b.WriteString("]")
	}
	return b.String()
}

// IssueBuilder provides a fluent API for building issues.
type IssueBuilder struct {
	issue Issue
}

// NewIssue creates a new IssueBuilder.
func NewIssue(severity IssueSeverity, code IssueType) *IssueBuilder {
	return &IssueBuilder{
		issue: Issue{
			Severity: severity,
			Code:     code,
		},
	}
}

// Warning creates a warning issue.
func Warning(code IssueType) *IssueBuilder {
	return NewIssue(SeverityWarning, code)
}

// Info creates an informational issue.
func Info(code IssueType) *IssueBuilder {
	return NewIssue(SeverityInformation, code)
}

// Kind sets the issue kind.
func (b *IssueBuilder) Kind(kind IssueKind) *IssueBuilder {
	b.issue.Kind = kind
	return b
}

// Codelist sets the codelist name.
func (b *IssueBuilder) Codelist(name string) *IssueBuilder {
	b.issue.Codelist = name
	return b
}

// Diagnostics sets the diagnostic message.
func (b *IssueBuilder) Diagnostics(msg string) *IssueBuilder {
	b.issue.Diagnostics = msg
	return b
}

// Payload sets the issue payload. The values are copied and sorted so that
// identical findings always render identically.
func (b *IssueBuilder) Payload(values ...string) *IssueBuilder {
	p := append([]string(nil), values...)
	sort.Strings(p)
	b.issue.Payload = p
	return b
}

// Stage sets the originating stage.
func (b *IssueBuilder) Stage(stage string) *IssueBuilder {
	b.issue.Stage = stage
	return b
}

// Build returns the constructed issue.
func (b *IssueBuilder) Build() Issue {
	return b.issue
}
