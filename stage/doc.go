// Package stage provides the normalization stages of a codelist run.
//
// Each stage handles one step of the normalization:
//   - aggregate: Folds flat property pairs into typed property maps
//   - drift: Reports property names the codelist does not expect
//   - classify: Separates category markers from selectable leaf codes
//   - synonyms: Collapses synonym groups into one canonical code
//   - project: Maps surviving concepts to output records
//
// Stages implement the pipeline.Stage interface and can be registered
// with a Pipeline for execution. The exported functions behind each stage
// (Aggregate, UnexpectedProperties, Classify, ResolveSynonyms, Project) are
// pure and usable on their own.
package stage
