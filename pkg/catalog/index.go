package catalog

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Index describes a lookup path an index-capable scan offers for a table. A
// batch join pushes the distinct key vectors of a batch down to the scan
// through the execution context, one value per index column.
type Index struct {
	Table   string
	Columns []string

	// BatchSize is the preferred number of outer rows per batch. Zero means
	// the session default.
	BatchSize int
}

// Name returns a stable identifier for the index, e.g. "orders(customer_id)".
func (i Index) Name() string {
	return fmt.Sprintf("%s(%s)", strings.ToLower(i.Table), strings.ToLower(strings.Join(i.Columns, ",")))
}

// Covers reports whether the index columns equal columns, in order and
// case-insensitively.
func (i Index) Covers(columns ...string) bool {
	return slices.EqualFunc(i.Columns, columns, strings.EqualFold)
}

// Catalog is the registry of the indexes the tables of a session expose.
// Table and column lookups are case-insensitive.
type Catalog struct {
	mu      sync.RWMutex
	indexes map[string][]Index
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{indexes: make(map[string][]Index)}
}

// Register adds an index. Registering the same table and columns twice
// replaces the earlier descriptor.
func (c *Catalog) Register(index Index) error {
	if strings.TrimSpace(index.Table) == "" {
		return fmt.Errorf("index table name cannot be empty")
	}
	if len(index.Columns) == 0 {
		return fmt.Errorf("index on %s must have at least one column", index.Table)
	}
	if index.BatchSize < 0 {
		return fmt.Errorf("index %s batch size must not be negative, got %d", index.Name(), index.BatchSize)
	}

	key := strings.ToLower(index.Table)

	c.mu.Lock()
	defer c.mu.Unlock()

	existing := c.indexes[key]
	for i, idx := range existing {
		if idx.Covers(index.Columns...) {
			existing[i] = index
			return nil
		}
	}
	c.indexes[key] = append(existing, index)
	return nil
}

// Indexes returns the indexes of a table.
func (c *Catalog) Indexes(table string) []Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.indexes[strings.ToLower(table)])
}

// Lookup finds the index of table over exactly columns.
func (c *Catalog) Lookup(table string, columns ...string) (Index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, idx := range c.indexes[strings.ToLower(table)] {
		if idx.Covers(columns...) {
			return idx, true
		}
	}
	return Index{}, false
}
