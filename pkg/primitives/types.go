package primitives

import "math"

// HashCode represents a hash value computed over key values.
// Equal keys always produce equal hash codes; the reverse does not hold.
type HashCode uint64

// TupleOrdinal identifies the table source or sub query that produced a tuple.
// Ordinals are assigned once when a plan is built and are never reused within
// a query.
type TupleOrdinal int

// NodeID identifies an operator within a plan. Node ids are dense, starting at
// zero, so per-node execution state can live in a slice indexed by id.
type NodeID int

// ColumnOrdinal identifies a column within a tuple.
type ColumnOrdinal int

// Sentinel values for invalid/unset identifiers
const (
	// NoTupleOrdinal marks a tuple that does not belong to a single source,
	// e.g. a composite tuple produced by a join.
	NoTupleOrdinal TupleOrdinal = -1

	// NoColumn is returned from column lookups that found nothing.
	NoColumn ColumnOrdinal = -1

	InvalidNodeID NodeID = math.MinInt32
)
