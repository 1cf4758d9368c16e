// Package codelists normalizes published medical terminology code systems
// into flat, de-duplicated code lists suitable for reference data.
//
// A code system (for example HL7 v3-orderableDrugForm or the EDQM route of
// administration vocabulary) arrives as a flat list of concepts, each with
// unordered (property, value) pairs. Normalization folds those pairs into a
// typed property map, reconstructs the category/leaf hierarchy from the
// subsumedBy relation, collapses synonym codes and projects the surviving
// concepts into records of code, title and optional description.
//
// # Quick Start
//
//	import (
//	    cl "github.com/gofhir/codelists"
//	    "github.com/gofhir/codelists/engine"
//	    "github.com/gofhir/codelists/rules"
//	)
//
//	eng := engine.New(cl.WithWorkerCount(2))
//	rule, _ := rules.Default().Get("dosageForm")
//	result, err := eng.Normalize(ctx, rule, concepts)
//	if err != nil {
//	    // the source contradicted itself; nothing from this run is usable
//	}
//	for _, issue := range result.Warnings() {
//	    fmt.Println(issue)
//	}
//
// # Stages
//
// Each run executes the following stages over the full concept set:
//
//   - Aggregate: fold property pairs per the codelist's property schema
//   - Drift: report property names the codelist does not expect
//   - Classify: keep active leaves directly below a category marker
//   - Synonyms: collapse synonym groups using the override table
//   - Project: apply exclusion and text rules, emit records in source order
//
// # Diagnostics
//
// Advisory findings never stop a run. They are returned as Issue values on
// the Result, stamped with the codelist name and the run ID. Only a
// contradictory single-valued property aborts a run.
package codelists
