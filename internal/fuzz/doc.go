// Package fuzztests houses Go fuzz harnesses for the front of the lowering
// pipeline: tree documents are decoded and lowered from arbitrary bytes to
// catch panics, hangs and invalid modules.
package fuzztests
