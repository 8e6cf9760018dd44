// Package ir defines the backend-independent plan a query is lowered into.
//
// A plan is a flat list of Blocks that linearizes the query tree: QueryRoot
// first, then per location its MarkTags, Filters and Outputs, then each edge
// as Traverse...Backtrack or Fold...Unfold. Filters carry an Expr tree over
// Operands (fields, literals, $parameters, %tags).
//
// ir imports nothing internal except compileerr and schema, so every phase
// and every backend can depend on it.
//
// Key constraints:
//   - NO float values anywhere in literals; floats travel as parameters
//   - Locations are comparable values and never mutated
//   - Fingerprints hash RFC 8785 canonical JSON with a domain prefix
package ir
