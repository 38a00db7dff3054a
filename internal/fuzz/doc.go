// Package fuzztests houses Go fuzz harnesses for the parsers that read
// tool output: position maps written by nu2rust and cargo's JSON message
// stream. They guard against panics and runaway lookups on arbitrary input.
package fuzztests
