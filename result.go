package codelists

import (
	"sync"
	"time"
)

// Record is one projected output row of a codelist.
type Record struct {
	// Code is the concept code, unique within the codelist
	Code string `json:"code"`

	// Title is the display label after the codelist's text transforms
	Title string `json:"title"`

	// Description is populated only when the codelist projects one
	Description string `json:"description,omitempty"`

	// HasDescription distinguishes an empty description from an absent one
	HasDescription bool `json:"-"`
}

// Stats contains statistics about one normalization run.
type Stats struct {
	// Concepts is the number of raw concepts received
	Concepts int `json:"concepts"`
	// Eligible is the number of concepts that passed classification
	Eligible int `json:"eligible"`
	// Resolved is the number of concepts left after synonym resolution
	Resolved int `json:"resolved"`
	// Records is the number of output records
	Records int `json:"records"`
	// Duration is the total run time
	Duration time.Duration `json:"duration"`
	// StagesRun is the number of stages executed
	StagesRun int `json:"stagesRun"`
}

// Result contains the outcome of normalizing one codelist.
type Result struct {
	// Codelist is the name of the normalized codelist
	Codelist string `json:"codelist"`

	// RunID identifies this run on the diagnostic channel
	RunID string `json:"runId"`

	// Columns is the header row for delimited output (Code, Title[, Description])
	Columns []string `json:"columns"`

	// Records are the output rows in source order
	Records []Record `json:"records"`

	// NotSelectable holds the category marker codes, sorted
	NotSelectable []string `json:"notSelectable,omitempty"`

	// ObservedProperties holds every property name seen in the source, sorted
	ObservedProperties []string `json:"observedProperties,omitempty"`

	// Issues contains the advisory findings of the run
	Issues []Issue `json:"issues,omitempty"`

	// Stats holds run statistics
	Stats Stats `json:"stats"`

	// mu protects concurrent access to Issues
	mu sync.Mutex
}

// NewResult creates an empty result for the named codelist.
func NewResult(codelist, runID string) *Result {
	return &Result{
		Codelist: codelist,
		RunID:    runID,
	}
}

// AddIssue adds an issue to the result, stamping the codelist and run ID.
// This method is thread-safe.
func (r *Result) AddIssue(issue Issue) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if issue.Codelist == "" {
		issue.Codelist = r.Codelist
	}
	if issue.RunID == "" {
		issue.RunID = r.RunID
	}
	r.Issues = append(r.Issues, issue)
}

// AddIssues adds multiple issues to the result.
func (r *Result) AddIssues(issues []Issue) {
	for _, issue := range issues {
		r.AddIssue(issue)
	}
}

// HasErrors returns true if there are any error or fatal issues.
func (r *Result) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, issue := range r.Issues {
		if issue.IsError() {
			return true
		}
	}
	return false
}

// Warnings returns only the warning issues.
func (r *Result) Warnings() []Issue {
	return r.filter(func(i Issue) bool { return i.IsWarning() })
}

// IssuesOfKind returns the issues with the given kind.
func (r *Result) IssuesOfKind(kind IssueKind) []Issue {
	return r.filter(func(i Issue) bool { return i.Kind == kind })
}

// WarningCount returns the number of warning issues.
func (r *Result) WarningCount() int {
	return len(r.Warnings())
}

func (r *Result) filter(keep func(Issue) bool) []Issue {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Issue
	for _, issue := range r.Issues {
		if keep(issue) {
			out = append(out, issue)
		}
	}
	return out
}

// Codes returns the codes of the output records in order.
func (r *Result) Codes() []string {
	codes := make([]string, len(r.Records))
	for i, rec := range r.Records {
		codes[i] = rec.Code
	}
	return codes
}

// Rows renders the records as string rows matching Columns.
func (r *Result) Rows() [][]string {
	withDescription := len(r.Columns) > 2
	rows := make([][]string, 0, len(r.Records))
	for _, rec := range r.Records {
		row := []string{rec.Code, rec.Title}
		if withDescription {
			row = append(row, rec.Description)
		}
		rows = append(rows, row)
	}
	return rows
}
