package join

import (
	"errors"
	"fmt"

	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// TableMode selects which outer rows of the hash table are emitted once the
// inner side is exhausted.
type TableMode int

const (
	// TableNone emits nothing: every result was produced while probing.
	TableNone TableMode = iota
	// TableMatched emits the populated rows of matched outer rows.
	TableMatched
	// TableUnmatched emits outer rows without a match.
	TableUnmatched
	// TableAll emits populated matched rows and unmatched outer rows.
	TableAll
)

func (m TableMode) String() string {
	switch m {
	case TableMatched:
		return "matched"
	case TableUnmatched:
		return "unmatched"
	case TableAll:
		return "all"
	default:
		return "none"
	}
}

// HashJoin builds a hash table over the outer rows and streams the inner
// rows through it. Rows are bucketed by the hash of their key values. With a
// predicate a hash collision only costs a predicate evaluation. Without one
// the keys of colliding rows are compared.
type HashJoin struct {
	id        primitives.NodeID
	spec      Spec
	outerKeys *expression.OrdinalValuesFactory
	innerKeys *expression.OrdinalValuesFactory
}

// NewHashJoin creates a hash join. outerKeys and innerKeys extract the key
// values of each side and must produce the same number of values.
func NewHashJoin(id primitives.NodeID, spec Spec, outerKeys, innerKeys *expression.OrdinalValuesFactory) (*HashJoin, error) {
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("hash join #%d: %w", id, err)
	}
	if outerKeys == nil || innerKeys == nil || outerKeys.Size() == 0 || outerKeys.Size() != innerKeys.Size() {
		return nil, dberror.Configuration(dberror.CodeInvalidConfig, fmt.Sprintf("%s#%d", execution.KindHashJoin, id),
			"hash join needs the same non zero number of outer and inner keys")
	}
	return &HashJoin{id: id, spec: spec, outerKeys: outerKeys, innerKeys: innerKeys}, nil
}

func (h *HashJoin) NodeID() primitives.NodeID      { return h.id }
func (h *HashJoin) Kind() execution.OperatorKind   { return execution.KindHashJoin }
func (h *HashJoin) Children() []execution.Operator { return []execution.Operator{h.spec.Outer, h.spec.Inner} }

func (h *HashJoin) Describe() string {
	return fmt.Sprintf("%s keys %v = %v table %s", h.spec.describe(), h.outerKeys.Expressions(),
		h.innerKeys.Expressions(), h.tableMode())
}

func (h *HashJoin) tableMode() TableMode {
	switch {
	case h.spec.Populating && h.spec.EmitEmptyOuter:
		return TableAll
	case h.spec.Populating:
		return TableMatched
	case h.spec.EmitEmptyOuter:
		return TableUnmatched
	default:
		return TableNone
	}
}

func (h *HashJoin) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	table, err := h.build(ctx)
	if err != nil {
		return nil, err
	}
	ctx.NodeLogger(h).Debug("hash table built", "rows", len(table.entries), "buckets", len(table.buckets))

	mode := h.tableMode()
	if len(table.entries) == 0 {
		return execution.Empty(), nil
	}

	inner, err := execution.Open(ctx, h.spec.Inner)
	if err != nil {
		return nil, err
	}
	probe := &hashProbeIterator{join: h, ctx: ctx, table: table, inner: inner, m: newMatcher(ctx, &h.spec)}
	probeIt := execution.NewBaseIterator(probe.readNext, inner.Close)
	if mode == TableNone {
		return probeIt, nil
	}
	return execution.Concat(probeIt, table.iterator(mode, probe.m)), nil
}

type hashTable struct {
	buckets map[primitives.HashCode][]hashEntry
	// entries keeps build order for the table iterators.
	entries []*outerHolder
}

func (h *HashJoin) build(ctx *execution.ExecutionContext) (*hashTable, error) {
	outer, err := execution.Open(ctx, h.spec.Outer)
	if err != nil {
		return nil, err
	}

	table := &hashTable{buckets: make(map[primitives.HashCode][]hashEntry)}
	err = execution.ForEach(outer, func(t tuple.Tuple) error {
		key, err := h.outerKeys.Create(ctx, t)
		if err != nil {
			return err
		}
		holder := &outerHolder{tuple: t}
		hash := key.Hash()
		table.buckets[hash] = append(table.buckets[hash], hashEntry{outerHolder: holder, key: key})
		table.entries = append(table.entries, holder)
		return nil
	})
	if err = errors.Join(err, outer.Close()); err != nil {
		return nil, err
	}
	return table, nil
}

// hashEntry is an outer row in its bucket.
type hashEntry struct {
	*outerHolder
	key ordinal.Values
}

// iterator returns the rows of the table selected by mode once probing is
// done. Matched and unmatched are decided by the flags the probe left on the
// holders.
func (t *hashTable) iterator(mode TableMode, m *matcher) execution.TupleIterator {
	pos := 0
	return execution.NewBaseIterator(func() (tuple.Tuple, error) {
		for pos < len(t.entries) {
			h := t.entries[pos]
			pos++
			switch {
			case h.matched && (mode == TableMatched || mode == TableAll):
				return m.finish(h), nil
			case !h.matched && (mode == TableUnmatched || mode == TableAll):
				return h.tuple, nil
			}
		}
		return nil, nil
	}, nil)
}

type hashProbeIterator struct {
	join  *HashJoin
	ctx   *execution.ExecutionContext
	table *hashTable
	inner execution.TupleIterator
	m     *matcher

	current    tuple.Tuple
	key        ordinal.Values
	candidates []hashEntry
	pos        int
}

func (it *hashProbeIterator) readNext() (tuple.Tuple, error) {
	for {
		for it.pos < len(it.candidates) {
			e := it.candidates[it.pos]
			it.pos++
			if it.join.spec.Predicate == nil && !e.key.Equal(it.key) {
				continue
			}
			out, err := it.m.test(e.outerHolder, it.current)
			if err != nil {
				return nil, err
			}
			if out != nil {
				return out, nil
			}
		}

		t, err := execution.Fetch(it.inner)
		if err != nil || t == nil {
			return nil, err
		}
		key, err := it.join.innerKeys.Create(it.ctx, t)
		if err != nil {
			return nil, err
		}
		it.current, it.key = t, key
		it.candidates = it.table.buckets[key.Hash()]
		it.pos = 0
	}
}
