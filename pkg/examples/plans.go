package examples

import (
	"fmt"
	"strings"

	"payloadbuilder/pkg/catalog"
	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/execution/cache"
	"payloadbuilder/pkg/execution/join"
	"payloadbuilder/pkg/execution/parallel"
	"payloadbuilder/pkg/execution/scan"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/primitives"
)

// Strategy names a join algorithm.
type Strategy string

const (
	NestedLoop Strategy = "nested"
	Hash       Strategy = "hash"
	BatchHash  Strategy = "batch-hash"
	BatchMerge Strategy = "batch-merge"
)

// Strategies returns every strategy in display order.
func Strategies() []Strategy {
	return []Strategy{NestedLoop, Hash, BatchHash, BatchMerge}
}

// ParseStrategy accepts the names of Strategies.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies() {
		if string(st) == strings.ToLower(strings.TrimSpace(s)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q, expected one of %v", s, Strategies())
}

// PlanOptions shape the join of customers with their orders.
type PlanOptions struct {
	// Populate nests the orders of a customer into one collection.
	Populate bool
	// Left keeps customers without orders.
	Left bool
	// MinAmount adds amount >= MinAmount to the join predicate when positive.
	MinAmount float64
	// BatchSize overrides the batch size of the batching joins.
	BatchSize int
	// Cache puts a batch cache in front of the index scan of batching joins.
	Cache bool
	// Parallel runs batch hash joins through a batch parallel operator.
	Parallel bool
}

// ids hands out plan node ids in creation order.
type ids struct{ n primitives.NodeID }

func (i *ids) next() primitives.NodeID {
	id := i.n
	i.n++
	return id
}

// Plan builds the join of customers (outer) and orders (inner) with the
// given strategy. Batching joins look the orders index up in c.
func (d *Dataset) Plan(s Strategy, c *catalog.Catalog, opts PlanOptions) (execution.Operator, error) {
	spec := join.Spec{
		Predicate:      predicate(opts),
		Populating:     opts.Populate,
		InnerOrdinal:   OrdersOrdinal,
		EmitEmptyOuter: opts.Left,
	}

	var id ids
	switch s {
	case NestedLoop:
		root := id.next()
		spec.Outer = scan.NewTableScan(id.next(), d.Customers)
		spec.Inner = scan.NewTableScan(id.next(), d.Orders)
		return operator(join.NewNestedLoop(root, spec, join.NestedLoopOptions{InnerCacheID: id.next()}))

	case Hash:
		root := id.next()
		spec.Outer = scan.NewTableScan(id.next(), d.Customers)
		spec.Inner = scan.NewTableScan(id.next(), d.Orders)
		return operator(join.NewHashJoin(root, spec, outerKeys(), innerKeys()))

	case BatchHash, BatchMerge:
		index, ok := c.Lookup(d.OrdersIndex.Table, d.OrdersIndex.Columns...)
		if !ok {
			return nil, dberror.Configuration(dberror.CodeMissingIndex, string(s),
				"no index on %s(%s) in the catalog", d.OrdersIndex.Table, strings.Join(d.OrdersIndex.Columns, ", "))
		}
		if opts.Parallel && s == BatchHash {
			return d.parallelPlan(spec, index, opts)
		}

		root := id.next()
		spec.Outer = scan.NewTableScan(id.next(), d.Customers)
		inner, err := d.inner(&id, index, s == BatchMerge, opts)
		if err != nil {
			return nil, err
		}
		spec.Inner = inner
		return batchJoin(root, s, spec, index, opts)

	default:
		return nil, fmt.Errorf("unknown strategy %q", s)
	}
}

// parallelPlan wraps a batch hash join over a batch source into a batch
// parallel operator reading the customers.
func (d *Dataset) parallelPlan(spec join.Spec, index catalog.Index, opts PlanOptions) (execution.Operator, error) {
	var id ids
	root := id.next()
	outer := scan.NewTableScan(id.next(), d.Customers)
	bodyID := id.next()
	source := scan.NewBatchSource(id.next())

	inner, err := d.inner(&id, index, false, opts)
	if err != nil {
		return nil, err
	}
	spec.Outer, spec.Inner = source, inner
	body, err := batchJoin(bodyID, BatchHash, spec, index, opts)
	if err != nil {
		return nil, err
	}
	return operator(parallel.NewBatchParallel(root, outer, source, body, parallel.Options{}))
}

func (d *Dataset) inner(id *ids, index catalog.Index, ordered bool, opts PlanOptions) (execution.Operator, error) {
	var cacheID primitives.NodeID
	if opts.Cache {
		cacheID = id.next()
	}

	lookup, err := scan.NewIndexScan(id.next(), d.Orders, index)
	if err != nil {
		return nil, err
	}
	var inner execution.Operator = lookup
	if ordered {
		inner = lookup.Ordered()
	}
	if !opts.Cache {
		return inner, nil
	}
	return operator(cache.NewBatchCache(cacheID, inner, cache.Options{
		Name:      expression.Lit("orders"),
		Alias:     "o",
		InnerKeys: innerKeys(),
	}))
}

// operator drops the typed nil a failed constructor returns.
func operator[T execution.Operator](op T, err error) (execution.Operator, error) {
	if err != nil {
		return nil, err
	}
	return op, nil
}

func batchJoin(id primitives.NodeID, s Strategy, spec join.Spec, index catalog.Index, opts PlanOptions) (execution.Operator, error) {
	bo := join.BatchOptions{
		Index:     index,
		OuterKeys: outerKeys(),
		InnerKeys: innerKeys(),
	}
	if opts.BatchSize > 0 {
		bo.BatchSize = expression.Lit(opts.BatchSize)
	}
	if s == BatchMerge {
		return operator(join.NewBatchMergeJoin(id, spec, bo))
	}
	return operator(join.NewBatchHashJoin(id, spec, bo))
}

func predicate(opts PlanOptions) expression.Expression {
	eq := expression.Eq(expression.Col(CustomersOrdinal, "id"), expression.Col(OrdersOrdinal, "customer_id"))
	if opts.MinAmount <= 0 {
		return eq
	}
	return expression.All(eq, expression.Compare(primitives.GreaterThanOrEqual,
		expression.Col(OrdersOrdinal, "amount"), expression.Lit(opts.MinAmount)))
}

func outerKeys() *expression.OrdinalValuesFactory {
	return expression.NewOrdinalValuesFactory(expression.Col(CustomersOrdinal, "id"))
}

func innerKeys() *expression.OrdinalValuesFactory {
	return expression.NewOrdinalValuesFactory(expression.Col(OrdersOrdinal, "customer_id"))
}
