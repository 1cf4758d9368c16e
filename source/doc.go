// Package source retrieves and decodes the published documents a codelist
// is built from.
//
// A Fetcher reads a document from an http(s) URL, a file:// URL or a local
// path. DecodeCodeSystem turns a FHIR R4 CodeSystem into the flat raw
// concepts the engine consumes, and CheckPrecondition evaluates a FHIRPath
// guard against the document before it is used.
package source
