// Package vm implements the genvm bytecode engine.
//
// This package contains:
//   - Tagged value representation and insertion-ordered objects
//   - Heap-resident stack frames with an explicit yield marker
//   - The bytecode format, builder, verifier and disassembler
//   - The interpreter loop with try/finally completion records
//   - Generator objects implementing next, return and throw
//   - Capture and restore of parked generator frames
//
// Programs can be sealed into an executable, read-only code region
// provided by the execmem subpackage.
package vm
