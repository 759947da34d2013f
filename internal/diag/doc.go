// Package diag defines the diagnostic model shared by the loader, the
// definition registry and every lowering pass.
//
// A Diagnostic carries a Severity, a stable numeric Code (rendered as
// IN/REG/MONO/RES/LOW/WARN/IR plus four digits), a short message, the
// primary source.Span and optional notes. Producers never print; they emit
// through a Reporter, usually a BagReporter feeding a Bag owned by the driver.
//
// Error classes follow the lowering engine:
//
//   - REG  registry errors (cyclic by-value containment, duplicates). Fatal,
//     reported before any code is generated.
//   - MONO instantiation errors (depth bound, arity, inference).
//   - RES  resolution errors (unknown binding, field, method, variant).
//   - LOW  structural mismatches found while lowering.
//   - WARN non-fatal findings; lowering continues.
//
// Rendering lives in internal/diagfmt.
package diag
