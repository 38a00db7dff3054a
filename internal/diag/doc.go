// Package diag defines the diagnostic model shared by the checker bridge,
// the CLI printers and the editor server.
//
// A Diagnostic is always expressed in one file's coordinates: either the
// generated .rs file as rustc reported it, or the .nu source after
// translation through a position map (see internal/diagmap). Positions are
// 1-based; the editor server converts at its boundary.
//
// Severity follows rustc's levels: error, warning, note (info) and help
// (hint). Related locations carry the child messages rustc attaches to a
// diagnostic.
//
// Bag is a bounded collection with deterministic Sort and Dedup so CLI
// output is stable across runs. Formatting lives in internal/diagfmt.
package diag
