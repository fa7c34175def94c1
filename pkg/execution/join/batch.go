package join

import (
	"errors"
	"fmt"

	"payloadbuilder/pkg/catalog"
	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
	"payloadbuilder/pkg/types"
)

// BatchOptions configure the batching joins.
type BatchOptions struct {
	// Index describes the index the inner branch is queried through.
	Index catalog.Index

	// OuterKeys and InnerKeys extract the index column values of each side,
	// in the column order of the index.
	OuterKeys *expression.OrdinalValuesFactory
	InnerKeys *expression.OrdinalValuesFactory

	// BatchSize overrides the batch size of the index. It is evaluated once
	// per open without a row and must yield a positive integer.
	BatchSize expression.Expression
}

// batchOuter is an outer row of the current batch with its key.
type batchOuter struct {
	outerHolder
	key  ordinal.Values
	hash primitives.HashCode
}

// batchInner is an inner row returned for the current batch with its key.
type batchInner struct {
	tuple tuple.Tuple
	key   ordinal.Values
}

// batchStrategy is what differs between batch hash and batch merge.
type batchStrategy interface {
	name() string

	// carryEqualKeys extends a full batch with the following outer rows
	// sharing the key of its last row.
	carryEqualKeys() bool

	// load indexes the inner rows of a batch.
	load(it *batchIterator, outer []*batchOuter, inner []batchInner) error

	// candidates returns the inner rows to test against outer row i.
	candidates(i int) []tuple.Tuple
}

// batchJoin is the operator state shared by the batching joins.
type batchJoin struct {
	id   primitives.NodeID
	kind execution.OperatorKind
	spec Spec
	opts BatchOptions

	// op is the operator embedding the batch join.
	op execution.Operator
}

func newBatchJoin(id primitives.NodeID, kind execution.OperatorKind, spec Spec, opts BatchOptions) (batchJoin, error) {
	component := fmt.Sprintf("%s#%d", kind, id)
	if err := spec.validate(); err != nil {
		return batchJoin{}, fmt.Errorf("%s: %w", component, err)
	}
	if len(opts.Index.Columns) == 0 {
		return batchJoin{}, dberror.Configuration(dberror.CodeMissingIndex, component,
			"batch joins need an index on the inner branch")
	}
	n := len(opts.Index.Columns)
	if opts.OuterKeys == nil || opts.InnerKeys == nil || opts.OuterKeys.Size() != n || opts.InnerKeys.Size() != n {
		return batchJoin{}, dberror.Configuration(dberror.CodeInvalidConfig, component,
			"outer and inner keys must have one value per column of index %s", opts.Index.Name())
	}
	return batchJoin{id: id, kind: kind, spec: spec, opts: opts}, nil
}

func (j *batchJoin) NodeID() primitives.NodeID      { return j.id }
func (j *batchJoin) Kind() execution.OperatorKind   { return j.kind }
func (j *batchJoin) Children() []execution.Operator { return []execution.Operator{j.spec.Outer, j.spec.Inner} }

func (j *batchJoin) Describe() string {
	d := fmt.Sprintf("%s index %s", j.spec.describe(), j.opts.Index.Name())
	if j.opts.BatchSize != nil {
		d += " batch " + j.opts.BatchSize.String()
	}
	return d
}

// batchSize resolves the batch size: the batch size expression, else the
// index batch size, else the session default.
func (j *batchJoin) batchSize(ctx *execution.ExecutionContext) (int, error) {
	if j.opts.BatchSize == nil {
		if j.opts.Index.BatchSize > 0 {
			return j.opts.Index.BatchSize, nil
		}
		return ctx.Session().BatchSize(), nil
	}

	v, err := j.opts.BatchSize.Eval(ctx, nil)
	if err != nil {
		return 0, dberror.Wrap(err, dberror.CodeInvalidBatchSize, "Open", execution.Component(j.op))
	}
	n, ok := types.AsInt64(v)
	if !ok || n <= 0 {
		return 0, dberror.Configuration(dberror.CodeInvalidBatchSize, execution.Component(j.op),
			"batch size expression %s must yield a positive integer, got %v", j.opts.BatchSize, v)
	}
	return int(n), nil
}

func (j *batchJoin) open(ctx *execution.ExecutionContext, strategy batchStrategy) (execution.TupleIterator, error) {
	size, err := j.batchSize(ctx)
	if err != nil {
		return nil, err
	}
	outer, err := execution.Open(ctx, j.spec.Outer)
	if err != nil {
		return nil, err
	}

	it := &batchIterator{
		join:     j,
		ctx:      ctx,
		outer:    outer,
		size:     size,
		strategy: strategy,
		m:        newMatcher(ctx, &j.spec),
	}
	return execution.NewBaseIterator(it.readNext, outer.Close), nil
}

// batchIterator drives the batch loop: read a batch of outer rows, invoke the
// inner branch once with their distinct keys, then probe every outer row
// against the candidates the strategy returns.
type batchIterator struct {
	join     *batchJoin
	ctx      *execution.ExecutionContext
	outer    execution.TupleIterator
	size     int
	strategy batchStrategy
	m        *matcher

	batch     []*batchOuter
	pending   *batchOuter
	outerDone bool
	lastKey   *ordinal.Values
	batches   int

	pos        int
	active     bool
	candidates []tuple.Tuple
	cpos       int
}

func (it *batchIterator) readNext() (tuple.Tuple, error) {
	for {
		if it.active {
			h := it.batch[it.pos]
			for it.cpos < len(it.candidates) {
				inner := it.candidates[it.cpos]
				it.cpos++
				out, err := it.m.test(&h.outerHolder, inner)
				if err != nil {
					return nil, err
				}
				if out != nil {
					return out, nil
				}
			}

			it.active = false
			it.pos++
			if out := it.m.finish(&h.outerHolder); out != nil {
				return out, nil
			}
			continue
		}

		if it.pos < len(it.batch) {
			it.candidates = it.strategy.candidates(it.pos)
			it.cpos = 0
			it.active = true
			continue
		}

		if it.outerDone && it.pending == nil {
			return nil, nil
		}
		if err := it.nextBatch(); err != nil {
			return nil, err
		}
		if len(it.batch) == 0 {
			return nil, nil
		}
	}
}

func (it *batchIterator) nextBatch() error {
	batch, err := it.readBatch()
	if err != nil {
		return err
	}
	it.batch, it.pos, it.active = batch, 0, false
	if len(batch) == 0 {
		return nil
	}

	distinct := distinctKeys(batch)
	inner, err := it.invokeInner(distinct)
	if err != nil {
		return err
	}

	it.batches++
	it.ctx.Statistics(it.join.id).AddBatch()
	if m := it.ctx.Session().Metrics; m != nil {
		m.RecordBatch(it.strategy.name(), len(batch))
		m.RecordInnerInvocation(it.strategy.name())
	}
	it.ctx.NodeLogger(it.join.op).Debug("batch joined",
		"batch", it.batches,
		"outer_rows", len(batch),
		"distinct_keys", len(distinct),
		"inner_rows", len(inner))

	return it.strategy.load(it, batch, inner)
}

func (it *batchIterator) readBatch() ([]*batchOuter, error) {
	batch := make([]*batchOuter, 0, it.size)
	for len(batch) < it.size {
		if it.pending != nil {
			batch = append(batch, it.pending)
			it.pending = nil
			continue
		}
		o, err := it.fetchOuter()
		if err != nil {
			return nil, err
		}
		if o == nil {
			return batch, nil
		}
		batch = append(batch, o)
	}

	if !it.strategy.carryEqualKeys() {
		return batch, nil
	}
	// Extend the batch with the rest of the run of its last key so a run of
	// equal keys is never split over two inner invocations.
	last := batch[len(batch)-1].key
	for {
		o, err := it.fetchOuter()
		if err != nil {
			return nil, err
		}
		if o == nil {
			return batch, nil
		}
		if o.key.Compare(last) != 0 {
			it.pending = o
			return batch, nil
		}
		batch = append(batch, o)
	}
}

func (it *batchIterator) fetchOuter() (*batchOuter, error) {
	if it.outerDone {
		return nil, nil
	}
	t, err := execution.Fetch(it.outer)
	if err != nil {
		return nil, err
	}
	if t == nil {
		it.outerDone = true
		return nil, nil
	}

	key, err := it.join.opts.OuterKeys.Create(it.ctx, t)
	if err != nil {
		return nil, err
	}
	if it.strategy.carryEqualKeys() && it.ctx.Session().AssertSorted {
		if it.lastKey != nil && key.Compare(*it.lastKey) < 0 {
			return nil, dberror.ContractViolation(dberror.CodeUnsortedInput, execution.Component(it.join.op),
				"outer key %s follows %s", key, *it.lastKey)
		}
		it.lastKey = &key
	}
	return &batchOuter{outerHolder: outerHolder{tuple: t}, key: key, hash: key.Hash()}, nil
}

// distinctKeys returns the distinct keys of a batch in first seen order.
func distinctKeys(batch []*batchOuter) []ordinal.Values {
	seen := make(map[primitives.HashCode][]ordinal.Values, len(batch))
	keys := make([]ordinal.Values, 0, len(batch))
outer:
	for _, o := range batch {
		for _, k := range seen[o.hash] {
			if k.Equal(o.key) {
				continue outer
			}
		}
		seen[o.hash] = append(seen[o.hash], o.key)
		keys = append(keys, o.key)
	}
	return keys
}

// invokeInner opens the inner branch once with the keys published as outer
// values and collects its rows. The inner branch must consume every key.
func (it *batchIterator) invokeInner(keys []ordinal.Values) (rows []batchInner, err error) {
	values := execution.NewOuterValues(keys)
	it.ctx.SetOuterValues(values)
	defer it.ctx.ClearOuterValues()

	inner, err := execution.Open(it.ctx, it.join.spec.Inner)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = errors.Join(err, inner.Close())
	}()

	err = execution.ForEach(inner, func(t tuple.Tuple) error {
		key, err := it.join.opts.InnerKeys.Create(it.ctx, t)
		if err != nil {
			return err
		}
		rows = append(rows, batchInner{tuple: t, key: key})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if values.HasNext() {
		return nil, dberror.ContractViolation(dberror.CodeOuterValuesNotConsumed, execution.Component(it.join.op),
			"inner branch consumed %d of %d outer values of batch %d",
			values.Len()-values.Remaining(), values.Len(), it.batches+1)
	}
	return rows, nil
}
