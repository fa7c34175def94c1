// Package cache implements the read through cache placed between a batch
// join and its inner branch.
package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/sosodev/duration"

	"payloadbuilder/pkg/dberror"
	"payloadbuilder/pkg/execution"
	"payloadbuilder/pkg/expression"
	"payloadbuilder/pkg/logging"
	"payloadbuilder/pkg/ordinal"
	"payloadbuilder/pkg/primitives"
	"payloadbuilder/pkg/tuple"
)

// Options configure a BatchCache.
type Options struct {
	// Name evaluates to the cache name. Required.
	Name expression.Expression

	// Key evaluates to a user supplied salt of every cache key. Optional.
	Key expression.Expression

	// TTL evaluates to an ISO-8601 duration such as "PT10M". Without it the
	// session default applies.
	TTL expression.Expression

	// Alias names the cached branch inside the cache keys.
	Alias string

	// ReadOnly disables the write back of fetched rows.
	ReadOnly bool

	// InnerKeys extracts the outer values an inner row belongs to.
	InnerKeys *expression.OrdinalValuesFactory
}

// BatchCache serves the outer values of a batch from the cache provider of
// the session and only pushes the misses down to the inner branch. Fetched
// rows are written back, including empty entries for keys without rows.
type BatchCache struct {
	id    primitives.NodeID
	inner execution.Operator
	opts  Options
}

// NewBatchCache wraps inner.
func NewBatchCache(id primitives.NodeID, inner execution.Operator, opts Options) (*BatchCache, error) {
	component := fmt.Sprintf("%s#%d", execution.KindBatchCache, id)
	if inner == nil {
		return nil, fmt.Errorf("%s: inner operator cannot be nil", component)
	}
	if opts.Name == nil {
		return nil, dberror.Configuration(dberror.CodeInvalidCacheName, component, "a cache name expression is required")
	}
	if opts.InnerKeys == nil || opts.InnerKeys.Size() == 0 {
		return nil, dberror.Configuration(dberror.CodeInvalidConfig, component, "inner key expressions are required")
	}
	return &BatchCache{id: id, inner: inner, opts: opts}, nil
}

func (c *BatchCache) NodeID() primitives.NodeID      { return c.id }
func (c *BatchCache) Kind() execution.OperatorKind   { return execution.KindBatchCache }
func (c *BatchCache) Children() []execution.Operator { return []execution.Operator{c.inner} }

func (c *BatchCache) Describe() string {
	d := "name " + c.opts.Name.String()
	if c.opts.Key != nil {
		d += " key " + c.opts.Key.String()
	}
	if c.opts.TTL != nil {
		d += " ttl " + c.opts.TTL.String()
	}
	if c.opts.ReadOnly {
		d += " read only"
	}
	return d
}

// settings are the evaluated options of one open.
type settings struct {
	name    string
	userKey string
	ttl     time.Duration
}

func (c *BatchCache) settings(ctx *execution.ExecutionContext) (settings, error) {
	component := execution.Component(c)
	var s settings

	v, err := c.opts.Name.Eval(ctx, nil)
	if err != nil {
		return s, err
	}
	name, ok := v.(string)
	if !ok || strings.TrimSpace(name) == "" {
		return s, dberror.Configuration(dberror.CodeInvalidCacheName, component,
			"cache name %s must be a non empty string, got %v", c.opts.Name, v)
	}
	s.name = name

	if c.opts.Key != nil {
		v, err := c.opts.Key.Eval(ctx, nil)
		if err != nil {
			return s, err
		}
		if v == nil {
			return s, dberror.Configuration(dberror.CodeInvalidCacheKey, component,
				"cache key %s evaluated to null", c.opts.Key)
		}
		s.userKey = fmt.Sprint(v)
	}

	s.ttl = ctx.Session().DefaultCacheTTL
	if c.opts.TTL != nil {
		v, err := c.opts.TTL.Eval(ctx, nil)
		if err != nil {
			return s, err
		}
		s.ttl, err = parseTTL(v)
		if err != nil {
			return s, dberror.Configuration(dberror.CodeInvalidCacheTTL, component,
				"cache ttl %s: %v", c.opts.TTL, err).WithHint("use an ISO-8601 duration such as PT10M")
		}
	}
	return s, nil
}

// parseTTL parses an ISO-8601 duration into a positive time.Duration.
func parseTTL(v any) (time.Duration, error) {
	text, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("expected a duration string, got %v", v)
	}
	d, err := duration.Parse(text)
	if err != nil {
		return 0, err
	}
	ttl := d.ToTimeDuration()
	if ttl <= 0 {
		return 0, fmt.Errorf("duration %q is not positive", text)
	}
	return ttl, nil
}

// cacheKey builds the provider key of one outer value.
func cacheKey(s settings, alias string, key ordinal.Values) string {
	return s.name + "/" + alias + "/" + s.userKey + "/" + key.Canonical()
}

func (c *BatchCache) Open(ctx *execution.ExecutionContext) (execution.TupleIterator, error) {
	component := execution.Component(c)
	provider := ctx.Session().CacheProvider
	if provider == nil {
		return nil, dberror.Configuration(dberror.CodeMissingCacheProvider, component,
			"the session has no cache provider")
	}
	outer := ctx.OuterValues()
	if outer == nil {
		return nil, dberror.ContractViolation(dberror.CodeMissingOuterValues, component,
			"batch cache opened without outer values")
	}

	s, err := c.settings(ctx)
	if err != nil {
		return nil, err
	}
	logger := logging.WithCache(s.name, provider.Name())

	keys := execution.DrainOuterValues(outer)
	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = cacheKey(s, c.opts.Alias, k)
	}
	unique := distinct(cacheKeys)

	hits, err := provider.GetAll(ctx.Context(), s.name, unique)
	if err != nil {
		logger.Warn("cache lookup failed, fetching every key", "error", err)
		hits = nil
	}

	var misses []int
	for i, k := range cacheKeys {
		if _, ok := hits[k]; !ok {
			misses = append(misses, i)
		}
	}
	hitCount := len(keys) - len(misses)
	ctx.Statistics(c.id).AddCacheLookups(hitCount, len(misses))
	ctx.Session().Metrics.RecordCacheLookup(s.name, hitCount, len(misses))
	ctx.NodeLogger(c).Debug("cache lookup", "cache", s.name, "keys", len(keys), "hits", hitCount, "misses", len(misses))

	var f fetchResult
	if len(misses) > 0 {
		f, err = c.fetch(ctx, keys, cacheKeys, misses)
		if err != nil {
			return nil, err
		}
		// The outer values of the join were consumed above; hand the drained
		// iterator back so the join sees the contract fulfilled.
		ctx.SetOuterValues(outer)

		if !c.opts.ReadOnly {
			entries := f.entries()
			if err := provider.PutAll(ctx.Context(), s.name, entries, s.ttl); err != nil {
				logger.Warn("cache write failed", "error", err, "entries", len(entries))
			} else {
				ctx.Session().Metrics.RecordCacheWrite(s.name, len(entries))
			}
		}
	}

	// Rows are returned in outer value order so sorted outer values give
	// sorted rows. A fetched row belonging to several keys is returned once.
	var rows []tuple.Tuple
	emitted := make([]bool, len(f.rows))
	for _, k := range unique {
		if cached, ok := hits[k]; ok {
			rows = append(rows, cached...)
			continue
		}
		for _, r := range f.byKey[k] {
			if !emitted[r] {
				emitted[r] = true
				rows = append(rows, f.rows[r])
			}
		}
	}
	return execution.NewSliceIterator(rows), nil
}

// distinct returns keys without duplicates, in first seen order.
func distinct(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// fetchResult holds the rows of the inner branch and, per missed cache key,
// the positions of the rows belonging to it.
type fetchResult struct {
	rows  []tuple.Tuple
	byKey map[string][]int
}

// entries are the rows to write back. Every missed key is present, with an
// empty slice when the inner branch returned nothing for it.
func (f fetchResult) entries() map[string][]tuple.Tuple {
	out := make(map[string][]tuple.Tuple, len(f.byKey))
	for k, positions := range f.byKey {
		rows := make([]tuple.Tuple, len(positions))
		for i, p := range positions {
			rows[i] = f.rows[p]
		}
		out[k] = rows
	}
	return out
}

// fetch pushes the missed outer values down to the inner branch and assigns
// every returned row to each missed key it equals.
func (c *BatchCache) fetch(ctx *execution.ExecutionContext, keys []ordinal.Values, cacheKeys []string, misses []int) (fetchResult, error) {
	missed := make([]ordinal.Values, 0, len(misses))
	byHash := make(map[primitives.HashCode][]int, len(misses))
	f := fetchResult{byKey: make(map[string][]int, len(misses))}
	for _, m := range misses {
		k := cacheKeys[m]
		if _, ok := f.byKey[k]; ok {
			continue
		}
		f.byKey[k] = []int{}
		missed = append(missed, keys[m])
		h := keys[m].Hash()
		byHash[h] = append(byHash[h], m)
	}

	values := execution.NewOuterValues(missed)
	ctx.SetOuterValues(values)
	defer ctx.ClearOuterValues()

	rows, err := execution.Drain(ctx, c.inner)
	if err != nil {
		return f, err
	}
	if values.HasNext() {
		return f, dberror.ContractViolation(dberror.CodeOuterValuesNotConsumed, execution.Component(c),
			"inner branch consumed %d of %d missed outer values", values.Len()-values.Remaining(), values.Len())
	}
	f.rows = rows

	for i, row := range rows {
		key, err := c.opts.InnerKeys.Create(ctx, row)
		if err != nil {
			return f, err
		}
		for _, m := range byHash[key.Hash()] {
			if keys[m].Equal(key) {
				f.byKey[cacheKeys[m]] = append(f.byKey[cacheKeys[m]], i)
			}
		}
	}
	return f, nil
}
