// Package parallel runs a plan over batches of outer rows on a worker pool.
package parallel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"

	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/execution/scan"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// releaseTimeout bounds how long Close waits for idle pool workers to exit.
const releaseTimeout = 5 * time.Second

// Options size a BatchParallel. Zero values take the session defaults.
type Options struct {
	BatchSize int
	Workers   int
	QueueSize int
}

func (o Options) withDefaults(d execution.ParallelOptions) Options {
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	return o
}

// BatchParallel partitions the outer rows into batches and runs body once
// per batch on a bounded worker pool. Each worker gets a cloned context whose
// BatchSource slot holds its batch. Rows of different batches interleave in
// the output; rows of one batch keep the order body produced them in.
type BatchParallel struct {
	id     primitives.NodeID
	outer  execution.Operator
	source *scan.BatchSource
	body   execution.Operator
	opts   Options
}

// NewBatchParallel creates the operator. source must be part of body.
func NewBatchParallel(id primitives.NodeID, outer execution.Operator, source *scan.BatchSource, body execution.Operator, opts Options) (*BatchParallel, error) {
	if outer == nil || source == nil || body == nil {
		return nil, fmt.Errorf("batch parallel #%d: outer, source and body are required", id)
	}

	found := false
	execution.Walk(body, func(op execution.Operator, _ int) bool {
		found = found || op == execution.Operator(source)
		return !found
	})
	if !found {
		return nil, dberror.Configuration(dberror.CodeInvalidConfig, fmt.Sprintf("%s#%d", execution.KindBatchParallel, id),
			"batch source #%d is not part of the body", source.NodeID())
	}
	return &BatchParallel{id: id, outer: outer, source: source, body: body, opts: opts}, nil
}

func (p *BatchParallel) NodeID() primitives.NodeID      { return p.id }
func (p *BatchParallel) Kind() execution.OperatorKind   { return execution.KindBatchParallel }
func (p *BatchParallel) Children() []execution.Operator { return []execution.Operator{p.outer, p.body} }

func (p *BatchParallel) Describe() string {
	return fmt.Sprintf("batch %d workers %d queue %d", p.opts.BatchSize, p.opts.Workers, p.opts.QueueSize)
}

// item is a produced row or a failure.
type item struct {
	tuple tuple.Tuple
	err   error
}

func (p *BatchParallel) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	opts := p.opts.withDefaults(ctx.Session().Parallel)
	component := execution.Component(p)
	// The producer drives the outer on ctx, which a correlated outer writes
	// to. Workers clone from this snapshot instead.
	base := ctx.Clone()

	outer, err := execution.Open(ctx, p.outer)
	if err != nil {
		return nil, err
	}

	r := &run{
		op:       p,
		ctx:      ctx,
		base:     base,
		opts:     opts,
		outer:    outer,
		results:  make(chan item, opts.QueueSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	r.pool, err = ants.NewPool(opts.Workers, ants.WithDisablePurge(true), ants.WithPanicHandler(func(v any) {
		ctx.NodeLogger(p).Error("batch worker panicked outside of a batch", "panic", v)
	}))
	if err != nil {
		return nil, errors.Join(
			dberror.Resource(err, dberror.CodeWorkerFailed, component, "failed to create worker pool"),
			outer.Close())
	}

	go r.produce()
	return execution.NewBaseIterator(r.readNext, r.close), nil
}

// run is the state of one open.
type run struct {
	op    *BatchParallel
	ctx   *execution.ExecutionContext
	base  *execution.ExecutionContext
	opts  Options
	outer execution.TupleIterator
	pool  *ants.Pool

	results chan item
	// done is closed by close and unblocks every pending send.
	done      chan struct{}
	closeOnce sync.Once
	aborted   atomic.Bool
	// finished is closed once the producer and every worker returned.
	finished chan struct{}

	workers sync.WaitGroup
	mu      sync.Mutex
	clones  []*execution.ExecutionContext
	batches atomic.Int64
}

// send delivers it to the consumer unless the run was closed.
func (r *run) send(it item) bool {
	if r.aborted.Load() {
		return false
	}
	select {
	case r.results <- it:
		return true
	case <-r.done:
		return false
	}
}

func (r *run) produce() {
	defer func() {
		r.workers.Wait()
		if err := r.outer.Close(); err != nil {
			r.send(item{err: err})
		}
		close(r.results)
		if err := r.pool.ReleaseTimeout(releaseTimeout); err != nil {
			r.ctx.NodeLogger(r.op).Warn("worker pool release timed out", "error", err)
		}
		close(r.finished)
	}()

	for !r.aborted.Load() {
		batch := make([]tuple.Tuple, 0, r.opts.BatchSize)
		for len(batch) < r.opts.BatchSize {
			t, err := execution.Fetch(r.outer)
			if err != nil {
				r.send(item{err: err})
				return
			}
			if t == nil {
				break
			}
			batch = append(batch, t)
		}
		if len(batch) == 0 {
			return
		}

		r.workers.Add(1)
		if err := r.pool.Submit(func() {
			defer r.workers.Done()
			defer r.recover()
			r.work(batch)
		}); err != nil {
			r.workers.Done()
			r.send(item{err: dberror.Resource(err, dberror.CodeWorkerFailed, execution.Component(r.op), "failed to submit batch")})
			return
		}

		if len(batch) < r.opts.BatchSize {
			return
		}
	}
}

// recover turns a panicking batch into a failed one. It runs before the
// worker is marked done so the failure is sent before the results close.
func (r *run) recover() {
	if v := recover(); v != nil {
		r.ctx.NodeLogger(r.op).Error("batch worker panicked", "panic", v)
		r.send(item{err: dberror.Resource(fmt.Errorf("panic: %v", v), dberror.CodeWorkerFailed,
			execution.Component(r.op), "batch worker panicked")})
	}
}

// work runs the body over one batch on a cloned context.
func (r *run) work(batch []tuple.Tuple) {
	n := r.batches.Inc()
	wctx := r.base.Clone()
	r.op.source.SetBatch(wctx, batch)

	err := r.drain(wctx)

	r.mu.Lock()
	r.clones = append(r.clones, wctx)
	r.mu.Unlock()

	r.ctx.Statistics(r.op.id).AddBatch()
	r.ctx.Session().Metrics.RecordParallelBatch(err)
	if err != nil {
		r.send(item{err: dberror.Resource(err, dberror.CodeWorkerFailed, execution.Component(r.op),
			fmt.Sprintf("batch %d failed", n))})
		return
	}
	r.ctx.NodeLogger(r.op).Debug("batch done", "batch", n, "outer_rows", len(batch))
}

func (r *run) drain(wctx *execution.ExecutionContext) (err error) {
	it, err := execution.Open(wctx, r.op.body)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, it.Close())
	}()

	for {
		t, err := execution.Fetch(it)
		if err != nil || t == nil {
			return err
		}
		if !r.send(item{tuple: t}) {
			return nil
		}
	}
}

func (r *run) readNext() (tuple.Tuple, error) {
	if err := r.ctx.Context().Err(); err != nil {
		return nil, r.interrupted(err)
	}

	select {
	case it, ok := <-r.results:
		if !ok {
			return nil, nil
		}
		if it.err != nil {
			r.aborted.Store(true)
			return nil, it.err
		}
		return it.tuple, nil
	case <-r.ctx.Context().Done():
		return nil, r.interrupted(r.ctx.Context().Err())
	}
}

func (r *run) interrupted(cause error) error {
	r.aborted.Store(true)
	return dberror.Resource(cause, dberror.CodeQueueInterrupted, execution.Component(r.op), "result queue interrupted")
}

// close aborts the workers, waits for them and merges their statistics.
func (r *run) close() error {
	r.closeOnce.Do(func() {
		r.aborted.Store(true)
		close(r.done)
	})
	<-r.finished

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clones {
		r.ctx.MergeStatistics(c)
	}
	r.clones = nil
	return nil
}
