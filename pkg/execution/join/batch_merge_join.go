package join

import (
	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// BatchMergeJoin joins outer rows sorted ascending by key with inner rows
// returned in the same order. Unsorted input silently produces wrong results
// unless the session asserts sortedness.
type BatchMergeJoin struct {
	batchJoin
}

// NewBatchMergeJoin creates a batch merge join. The inner branch must
// consume the outer values of every batch and return its rows ordered by key,
// as an ordered IndexScan does.
func NewBatchMergeJoin(id primitives.NodeID, spec Spec, opts BatchOptions) (*BatchMergeJoin, error) {
	bj, err := newBatchJoin(id, execution.KindBatchMergeJoin, spec, opts)
	if err != nil {
		return nil, err
	}
	j := &BatchMergeJoin{batchJoin: bj}
	j.op = j
	return j, nil
}

func (j *BatchMergeJoin) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	return j.open(ctx, &mergeBatch{})
}

// mergeBatch assigns every outer row the run of inner rows with an equal key.
// The inner cursor only moves forward. Outer rows repeating the previous key
// rewind to the run already found for it.
type mergeBatch struct {
	runs [][]tuple.Tuple
}

func (b *mergeBatch) name() string         { return "batch_merge" }
func (b *mergeBatch) carryEqualKeys() bool { return true }

func (b *mergeBatch) load(it *batchIterator, outer []*batchOuter, inner []batchInner) error {
	if it.ctx.Session().AssertSorted {
		for i := 1; i < len(inner); i++ {
			if inner[i].key.Compare(inner[i-1].key) < 0 {
				return dberror.ContractViolation(dberror.CodeUnsortedInput, execution.Component(it.join.op),
					"inner key %s follows %s", inner[i].key, inner[i-1].key)
			}
		}
	}

	rows := make([]tuple.Tuple, len(inner))
	for i, r := range inner {
		rows[i] = r.tuple
	}

	b.runs = make([][]tuple.Tuple, len(outer))
	cursor := 0
	for i, o := range outer {
		if i > 0 && o.key.Compare(outer[i-1].key) == 0 {
			b.runs[i] = b.runs[i-1]
			continue
		}
		for cursor < len(inner) && inner[cursor].key.Compare(o.key) < 0 {
			cursor++
		}
		end := cursor
		for end < len(inner) && inner[end].key.Compare(o.key) == 0 {
			end++
		}
		b.runs[i] = rows[cursor:end:end]
		cursor = end
	}
	return nil
}

func (b *mergeBatch) candidates(i int) []tuple.Tuple {
	return b.runs[i]
}
