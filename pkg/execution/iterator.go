package execution

import (
	"errors"
	"fmt"

	"payloadbuilder/pkg/tuple"
)

// TupleIterator is the pull contract every operator iterator implements.
//
// HasNext is an idempotent look-ahead that may do upstream work. Next returns
// the looked-ahead tuple and is only valid after HasNext reported true. Close
// releases child iterators and must be called exactly once by the owner.
type TupleIterator interface {
	HasNext() (bool, error)
	Next() (tuple.Tuple, error)
	Close() error
}

// ReadNextFunc is the function signature for reading the next tuple from an iterator.
// Returns:
//   - tuple.Tuple: Next tuple from the data source, or nil if no more tuples
//   - error: Error if reading fails, nil on success or end of data
type ReadNextFunc func() (tuple.Tuple, error)

// CloseFunc releases the resources of an iterator.
type CloseFunc func() error

// ErrNoMoreTuples is returned by Next when the iterator is exhausted.
var ErrNoMoreTuples = errors.New("no more tuples")

// BaseIterator implements the caching logic and state management for tuple iterators.
// It provides a common foundation for all operator iterators, handling
// look-ahead caching, exhaustion and close state, and delegation to the
// operator specific read function.
type BaseIterator struct {
	nextTuple    tuple.Tuple  // Cached next tuple for lookahead operations
	done         bool         // The read function reported the end of data
	closed       bool         // Close was called
	readNextFunc ReadNextFunc // Function to read the next tuple from the underlying source
	closeFunc    CloseFunc
}

// NewBaseIterator creates a new base iterator with the given readNext function.
// onClose may be nil; it runs once, on the first Close.
func NewBaseIterator(readNextFunc ReadNextFunc, onClose CloseFunc) *BaseIterator {
	return &BaseIterator{
		readNextFunc: readNextFunc,
		closeFunc:    onClose,
	}
}

// HasNext checks if there is a next tuple available without consuming it.
// Once the read function signals the end of data it is not called again.
func (it *BaseIterator) HasNext() (bool, error) {
	if it.closed {
		return false, fmt.Errorf("iterator closed")
	}

	if it.nextTuple == nil && !it.done {
		t, err := it.readNextFunc()
		if err != nil {
			return false, err
		}
		if t == nil {
			it.done = true
		}
		it.nextTuple = t
	}
	return it.nextTuple != nil, nil
}

// Next returns the next tuple from the iterator and advances the iterator position.
func (it *BaseIterator) Next() (tuple.Tuple, error) {
	ok, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoMoreTuples
	}

	result := it.nextTuple
	it.nextTuple = nil
	return result, nil
}

// Close releases resources associated with the iterator. Calling Close more
// than once is a no-op.
func (it *BaseIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.nextTuple = nil
	if it.closeFunc != nil {
		return it.closeFunc()
	}
	return nil
}

// Fetch retrieves the next tuple from an iterator.
// Returns the tuple if available, nil if no more tuples, or error.
// Handles all the HasNext/Next ceremony internally.
func Fetch(it TupleIterator) (tuple.Tuple, error) {
	hasNext, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !hasNext {
		return nil, nil
	}
	return it.Next()
}

// ForEach calls fn for every remaining tuple of it. Iteration stops at the
// first error.
func ForEach(it TupleIterator, fn func(tuple.Tuple) error) error {
	for {
		t, err := Fetch(it)
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		if err := fn(t); err != nil {
			return err
		}
	}
}

// Collect drains it into a slice. It does not close it.
func Collect(it TupleIterator) ([]tuple.Tuple, error) {
	var out []tuple.Tuple
	err := ForEach(it, func(t tuple.Tuple) error {
		out = append(out, t)
		return nil
	})
	return out, err
}

// Drain opens op, collects every tuple and closes the iterator.
func Drain(ctx *ExecutionContext, op Operator) ([]tuple.Tuple, error) {
	it, err := Open(ctx, op)
	if err != nil {
		return nil, err
	}
	rows, err := Collect(it)
	return rows, errors.Join(err, it.Close())
}

// SliceIterator iterates a slice of tuples.
type SliceIterator struct {
	tuples  []tuple.Tuple
	index   int
	onClose CloseFunc
}

// NewSliceIterator creates an iterator over tuples. The slice is not copied.
func NewSliceIterator(tuples []tuple.Tuple) *SliceIterator {
	return &SliceIterator{tuples: tuples}
}

// Empty returns an iterator without tuples.
func Empty() TupleIterator {
	return NewSliceIterator(nil)
}

// OnClose registers a function to run when the iterator is closed.
func (s *SliceIterator) OnClose(fn CloseFunc) *SliceIterator {
	s.onClose = fn
	return s
}

func (s *SliceIterator) HasNext() (bool, error) {
	return s.index < len(s.tuples), nil
}

func (s *SliceIterator) Next() (tuple.Tuple, error) {
	if s.index >= len(s.tuples) {
		return nil, ErrNoMoreTuples
	}
	t := s.tuples[s.index]
	s.index++
	return t, nil
}

func (s *SliceIterator) Close() error {
	s.index = len(s.tuples)
	if s.onClose != nil {
		fn := s.onClose
		s.onClose = nil
		return fn()
	}
	return nil
}

// Concat returns an iterator that exhausts each iterator in turn. Closing the
// result closes every iterator.
func Concat(iterators ...TupleIterator) TupleIterator {
	index := 0
	return NewBaseIterator(func() (tuple.Tuple, error) {
		for index < len(iterators) {
			t, err := Fetch(iterators[index])
			if err != nil {
				return nil, err
			}
			if t != nil {
				return t, nil
			}
			index++
		}
		return nil, nil
	}, func() error {
		var errs []error
		for _, it := range iterators {
			errs = append(errs, it.Close())
		}
		return errors.Join(errs...)
	})
}
