// Package concept defines the concept records that flow through a
// normalization run: the raw (code, property) pairs received from a source
// and the aggregated form with a typed property map.
package concept
