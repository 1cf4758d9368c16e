package codelists

import (
	"fmt"
	"strings"
)

// DiagnosticID identifies a specific diagnostic message.
type DiagnosticID string

// Diagnostic IDs reported by the normalization stages.
const (
	DiagSchemaDrift        DiagnosticID = "SCHEMA_DRIFT"
	DiagSynonymUnresolved  DiagnosticID = "SYNONYM_UNRESOLVED"
	DiagSynonymDropped     DiagnosticID = "SYNONYM_DROPPED"
	DiagPropertyConflict   DiagnosticID = "PROPERTY_CONFLICT"
	DiagNoEligibleConcepts DiagnosticID = "NO_ELIGIBLE_CONCEPTS"
)

// DiagnosticTemplate defines the structure for a diagnostic message.
type DiagnosticTemplate struct {
	ID       DiagnosticID
	Severity IssueSeverity
	Code     IssueType
	Kind     IssueKind
	Template string
}

// diagnosticTemplates maps diagnostic IDs to their templates.
// Templates use {placeholder} syntax for variable substitution.
var diagnosticTemplates = map[DiagnosticID]DiagnosticTemplate{
	DiagSchemaDrift: {
		Severity: SeverityWarning,
		Code:     IssueTypeNotSupported,
		Kind:     KindSchemaDrift,
		Template: "Unexpected properties in the source: {properties}",
	},
	DiagSynonymUnresolved: {
		Severity: SeverityWarning,
		Code:     IssueTypeBusinessRule,
		Kind:     KindUnresolvedSynonym,
		Template: "Synonym pair '{left}' / '{right}' has no override; both codes are kept",
	},
	DiagSynonymDropped: {
		Severity: SeverityInformation,
		Code:     IssueTypeInformational,
		Kind:     KindSynonymDropped,
		Template: "Code '{code}' dropped in favour of '{keep}'",
	},
	DiagPropertyConflict: {
		Severity: SeverityFatal,
		Code:     IssueTypeConflict,
		Kind:     KindPropertyConflict,
		Template: "{error}",
	},
	DiagNoEligibleConcepts: {
		Severity: SeverityWarning,
		Code:     IssueTypeProcessing,
		Template: "No concept of {total} is eligible for output",
	},
}

// FormatDiagnostic formats a diagnostic message with the given parameters.
func FormatDiagnostic(id DiagnosticID, params map[string]any) string {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return string(id)
	}
	return formatTemplate(tmpl.Template, params)
}

// GetDiagnosticTemplate returns the template for a diagnostic ID.
func GetDiagnosticTemplate(id DiagnosticID) (DiagnosticTemplate, bool) {
	tmpl, ok := diagnosticTemplates[id]
	if ok {
		tmpl.ID = id
	}
	return tmpl, ok
}

// Diagnostic starts an issue from the catalog entry for id.
// Unknown IDs yield a processing warning carrying the raw ID.
func Diagnostic(id DiagnosticID, params map[string]any) *IssueBuilder {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		b := Warning(IssueTypeProcessing).Diagnostics(string(id))
		b.issue.MessageID = string(id)
		return b
	}
	b := NewIssue(tmpl.Severity, tmpl.Code).
		Kind(tmpl.Kind).
		Diagnostics(formatTemplate(tmpl.Template, params))
	b.issue.MessageID = string(id)
	return b
}

// formatTemplate replaces {placeholder} with values from params.
func formatTemplate(template string, params map[string]any) string {
	result := template
	for key, value := range params {
		placeholder := "{" + key + "}"
		result = strings.ReplaceAll(result, placeholder, fmt.Sprint(value))
	}
	return result
}
