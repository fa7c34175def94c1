package execution

import (
	"fmt"
	"strings"
	"time"

	"payloadbuilder/pkg/primitives"
)

// OperatorKind is the closed set of operators the engine knows.
type OperatorKind int

const (
	KindTableScan OperatorKind = iota
	KindIndexScan
	KindFilter
	KindValues
	KindBatchSource
	KindNestedLoop
	KindHashJoin
	KindBatchHashJoin
	KindBatchMergeJoin
	KindInnerCache
	KindGroupBy
	KindBatchCache
	KindBatchParallel
)

func (k OperatorKind) String() string {
	switch k {
	case KindTableScan:
		return "TableScan"
	case KindIndexScan:
		return "IndexScan"
	case KindFilter:
		return "Filter"
	case KindValues:
		return "Values"
	case KindBatchSource:
		return "BatchSource"
	case KindNestedLoop:
		return "NestedLoop"
	case KindHashJoin:
		return "HashJoin"
	case KindBatchHashJoin:
		return "BatchHashJoin"
	case KindBatchMergeJoin:
		return "BatchMergeJoin"
	case KindInnerCache:
		return "InnerCache"
	case KindGroupBy:
		return "GroupBy"
	case KindBatchCache:
		return "BatchCache"
	case KindBatchParallel:
		return "BatchParallel"
	default:
		return "UNKNOWN"
	}
}

// Family groups kinds for rendering.
func (k OperatorKind) Family() string {
	switch k {
	case KindTableScan, KindIndexScan, KindValues, KindBatchSource:
		return "source"
	case KindFilter:
		return "filter"
	case KindNestedLoop, KindHashJoin, KindBatchHashJoin, KindBatchMergeJoin:
		return "join"
	case KindInnerCache, KindBatchCache:
		return "cache"
	case KindGroupBy:
		return "aggregate"
	case KindBatchParallel:
		return "parallel"
	default:
		panic(fmt.Sprintf("execution: unknown operator kind %d", int(k)))
	}
}

// IsJoin reports whether the kind is one of the join strategies.
func (k OperatorKind) IsJoin() bool {
	return k.Family() == "join"
}

// Operator is a node of a plan. Operators are immutable factories: Open may
// be called any number of times, on any context, and keeps all state in the
// returned iterator or in the node slot of the context.
type Operator interface {
	NodeID() primitives.NodeID
	Kind() OperatorKind
	Children() []Operator
	Open(ctx *ExecutionContext) (TupleIterator, error)
}

// Describer is implemented by operators that add detail to Explain output.
type Describer interface {
	Describe() string
}

// Open opens op on ctx, recording execution count, open time and produced
// rows in the node statistics. Operators open their children through Open.
func Open(ctx *ExecutionContext, op Operator) (TupleIterator, error) {
	stats := ctx.Statistics(op.NodeID())

	start := time.Now()
	it, err := op.Open(ctx)
	stats.recordOpen(time.Since(start))
	if err != nil {
		return nil, err
	}
	return &statisticsIterator{it: it, stats: stats}, nil
}

// Walk visits op and its descendants depth first, parents before children.
// Returning false from fn skips the children of that node.
func Walk(op Operator, fn func(op Operator, depth int) bool) {
	walk(op, 0, fn)
}

func walk(op Operator, depth int, fn func(Operator, int) bool) {
	if op == nil || !fn(op, depth) {
		return
	}
	for _, child := range op.Children() {
		walk(child, depth+1, fn)
	}
}

// NodeCount returns one more than the largest node id of the plan.
func NodeCount(root Operator) int {
	n := 0
	Walk(root, func(op Operator, _ int) bool {
		if id := int(op.NodeID()); id >= n {
			n = id + 1
		}
		return true
	})
	return n
}

// Explain renders the plan as an indented tree. When ctx is not nil every
// line carries the node statistics gathered so far.
func Explain(root Operator, ctx *ExecutionContext) string {
	var b strings.Builder
	Walk(root, func(op Operator, depth int) bool {
		b.WriteString(strings.Repeat("  ", depth))
		fmt.Fprintf(&b, "%s#%d [%s]", op.Kind(), op.NodeID(), op.Kind().Family())

		if d, ok := op.(Describer); ok {
			if s := d.Describe(); s != "" {
				b.WriteString(" ")
				b.WriteString(s)
			}
		}
		if ctx != nil {
			b.WriteString(" (")
			b.WriteString(ctx.Statistics(op.NodeID()).Snapshot().String())
			b.WriteString(")")
		}
		b.WriteString("\n")
		return true
	})
	return b.String()
}

// Component names op for errors and logs, e.g. "BatchHashJoin#3".
func Component(op Operator) string {
	return fmt.Sprintf("%s#%d", op.Kind(), op.NodeID())
}
