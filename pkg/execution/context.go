package execution

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"payloadbuilder/pkg/logging"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// SharedState is node state shared by a context and all of its clones. It is
// used for materializations that must happen at most once per statement even
// when parallel workers open the same node concurrently.
type SharedState struct {
	mu     sync.Mutex
	value  any
	loaded bool
}

// LoadOrInit returns the stored value, calling init to produce it the first
// time. A failing init stores nothing, so the next caller retries.
func (s *SharedState) LoadOrInit(init func() (any, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.value, nil
	}
	v, err := init()
	if err != nil {
		return nil, err
	}
	s.value, s.loaded = v, true
	return v, nil
}

// Reset discards the stored value.
func (s *SharedState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.loaded = nil, false
}

// NodeSlot is the execution state of one plan node within one context.
type NodeSlot struct {
	stats  NodeStatistics
	mu     sync.Mutex
	state  any
	shared *SharedState
}

// Stats returns the node statistics of this context.
func (s *NodeSlot) Stats() *NodeStatistics {
	return &s.stats
}

// State returns the context local state of the node.
func (s *NodeSlot) State() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState replaces the context local state of the node.
func (s *NodeSlot) SetState(v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = v
}

// Shared returns the state shared with clones of the context.
func (s *NodeSlot) Shared() *SharedState {
	return s.shared
}

// ExecutionContext carries everything a statement execution needs besides the
// plan itself. Operators are stateless; their per-execution state lives in
// the iterators they return and in the node slots of the context, indexed by
// node id.
//
// A context is driven by one goroutine. Batch parallel workers run on clones.
type ExecutionContext struct {
	ctx     context.Context
	queryID string
	session *Session
	logger  *slog.Logger

	slotsMu sync.RWMutex
	slots   []*NodeSlot

	outerValues OuterValues
	outerTuple  tuple.Tuple
	variables   map[string]any
}

// NewExecutionContext creates a context for a plan whose node ids are below
// nodeCount. Slots of larger ids are allocated on demand.
func NewExecutionContext(ctx context.Context, session *Session, nodeCount int) *ExecutionContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if session == nil {
		session = NewSession()
	}

	id := uuid.NewString()
	slots := make([]*NodeSlot, nodeCount)
	for i := range slots {
		slots[i] = &NodeSlot{shared: &SharedState{}}
	}

	return &ExecutionContext{
		ctx:       ctx,
		queryID:   id,
		session:   session,
		logger:    logging.WithQuery(id),
		slots:     slots,
		variables: make(map[string]any),
	}
}

// ForPlan creates a context sized for the plan rooted at root.
func ForPlan(ctx context.Context, session *Session, root Operator) *ExecutionContext {
	return NewExecutionContext(ctx, session, NodeCount(root))
}

// Context returns the Go context of the execution.
func (c *ExecutionContext) Context() context.Context {
	return c.ctx
}

// QueryID returns the id of the statement execution.
func (c *ExecutionContext) QueryID() string {
	return c.queryID
}

// Session returns the session the statement runs in.
func (c *ExecutionContext) Session() *Session {
	return c.session
}

// Logger returns a logger carrying the query id.
func (c *ExecutionContext) Logger() *slog.Logger {
	return c.logger
}

// NodeLogger returns a logger carrying the query id and the node.
func (c *ExecutionContext) NodeLogger(op Operator) *slog.Logger {
	return logging.WithNode(c.queryID, int(op.NodeID()), op.Kind().String())
}

// Slot returns the slot of a node.
func (c *ExecutionContext) Slot(id primitives.NodeID) *NodeSlot {
	if id < 0 {
		panic("execution: negative node id")
	}

	c.slotsMu.RLock()
	if int(id) < len(c.slots) {
		s := c.slots[id]
		c.slotsMu.RUnlock()
		return s
	}
	c.slotsMu.RUnlock()

	c.slotsMu.Lock()
	defer c.slotsMu.Unlock()
	for len(c.slots) <= int(id) {
		c.slots = append(c.slots, &NodeSlot{shared: &SharedState{}})
	}
	return c.slots[id]
}

// Statistics returns the statistics of a node.
func (c *ExecutionContext) Statistics(id primitives.NodeID) *NodeStatistics {
	return c.Slot(id).Stats()
}

// SetOuterValues publishes the outer values of the current batch to the
// index-capable operator of the inner branch about to be opened.
func (c *ExecutionContext) SetOuterValues(values OuterValues) {
	c.outerValues = values
}

// OuterValues returns the published outer values, or nil.
func (c *ExecutionContext) OuterValues() OuterValues {
	return c.outerValues
}

// ClearOuterValues removes the published outer values.
func (c *ExecutionContext) ClearOuterValues() {
	c.outerValues = nil
}

// SetOuterTuple sets the outer row of a correlated sub query. It returns the
// previous value so callers can restore it.
func (c *ExecutionContext) SetOuterTuple(t tuple.Tuple) tuple.Tuple {
	prev := c.outerTuple
	c.outerTuple = t
	return prev
}

// OuterTuple implements expression.Context.
func (c *ExecutionContext) OuterTuple() tuple.Tuple {
	return c.outerTuple
}

// SetVariable sets a query variable.
func (c *ExecutionContext) SetVariable(name string, v any) {
	c.variables[name] = v
}

// Variable implements expression.Context.
func (c *ExecutionContext) Variable(name string) any {
	return c.variables[name]
}

// Clone creates a context for a parallel worker. The clone shares the
// session, the query id, variables and shared node state, but has its own
// statistics, local node state and outer values.
func (c *ExecutionContext) Clone() *ExecutionContext {
	c.slotsMu.RLock()
	slots := make([]*NodeSlot, len(c.slots))
	for i, s := range c.slots {
		slots[i] = &NodeSlot{shared: s.shared}
	}
	c.slotsMu.RUnlock()

	variables := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		variables[k] = v
	}

	return &ExecutionContext{
		ctx:        c.ctx,
		queryID:    c.queryID,
		session:    c.session,
		logger:     c.logger,
		slots:      slots,
		outerTuple: c.outerTuple,
		variables:  variables,
	}
}

// MergeStatistics folds the node statistics of a clone into c.
func (c *ExecutionContext) MergeStatistics(child *ExecutionContext) {
	child.slotsMu.RLock()
	defer child.slotsMu.RUnlock()

	for i, s := range child.slots {
		c.Slot(primitives.NodeID(i)).stats.Merge(&s.stats)
	}
}
