// Package core defines the shared language of the qcops system.
//
// This package contains:
//   - Domain entities (Lot, Edge, Deviation, Partner, TechTransfer)
//   - The resolved lineage Chain of a Drug Product lot
//   - Typed failure conditions (LineageIncompleteError, MissingAttributeError)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
