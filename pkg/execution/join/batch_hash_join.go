package join

import (
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// BatchHashJoin reads the outer rows in batches, fetches the inner rows of
// each batch through the index in a single inner invocation and joins them
// through a per batch hash table.
type BatchHashJoin struct {
	batchJoin
}

// NewBatchHashJoin creates a batch hash join. The inner branch must contain
// an index-capable operator consuming the outer values of every batch.
func NewBatchHashJoin(id primitives.NodeID, spec Spec, opts BatchOptions) (*BatchHashJoin, error) {
	bj, err := newBatchJoin(id, execution.KindBatchHashJoin, spec, opts)
	if err != nil {
		return nil, err
	}
	j := &BatchHashJoin{batchJoin: bj}
	j.op = j
	return j, nil
}

func (j *BatchHashJoin) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	return j.open(ctx, &hashBatch{})
}

// hashBatch buckets the inner rows of a batch by key hash. Inner rows whose
// hash matches no outer row are never probed. Without a predicate the keys
// themselves decide, so colliding hashes are compared.
type hashBatch struct {
	outer   []*batchOuter
	buckets map[primitives.HashCode][]batchInner
	exact   bool
	rows    []tuple.Tuple
}

func (b *hashBatch) name() string         { return "batch_hash" }
func (b *hashBatch) carryEqualKeys() bool { return false }

func (b *hashBatch) load(it *batchIterator, outer []*batchOuter, inner []batchInner) error {
	b.outer = outer
	b.exact = it.join.spec.Predicate == nil
	b.buckets = make(map[primitives.HashCode][]batchInner, len(inner))
	for _, r := range inner {
		h := r.key.Hash()
		b.buckets[h] = append(b.buckets[h], r)
	}
	return nil
}

func (b *hashBatch) candidates(i int) []tuple.Tuple {
	o := b.outer[i]
	b.rows = b.rows[:0]
	for _, r := range b.buckets[o.hash] {
		if b.exact && !r.key.Equal(o.key) {
			continue
		}
		b.rows = append(b.rows, r.tuple)
	}
	return b.rows
}
