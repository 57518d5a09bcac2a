package summary

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"locagest/internal/cache"
	"locagest/internal/core"
)

// Cache memoizes summaries across the many call sites that render the same
// contract. Entries are keyed by contract id and payments version, plus the
// contract revision, advance mode and date, which are the other inputs of
// Compute. It must be cleared after a migration run.
type Cache struct {
	calc  *Calculator
	store *cache.LRUCache[ContractSummary]
	group singleflight.Group
}

// NewCache wraps calc with a bounded memo. A ttl of zero keeps entries until
// they are evicted or invalidated.
func NewCache(calc *Calculator, size int, ttl time.Duration) *Cache {
	if calc == nil {
		calc = NewCalculator(nil)
	}
	return &Cache{
		calc:  calc,
		store: cache.NewLRUCache[ContractSummary](size, ttl),
	}
}

// Key builds the memo key. Entries are also grouped by contract id so that
// Invalidate drops them without scanning.
func Key(c core.Contract, opts Options) string {
	return fmt.Sprintf("%s|p%d|r%d|%s|%s", c.ID, c.PaymentsVersion, c.Revision, opts.AdvanceMode, opts.Today.String())
}

// Compute returns the memoized summary or computes it. Concurrent misses on
// the same key run the calculator once. Callers get their own copy of the
// Payments slice and the ByMethod map.
func (c *Cache) Compute(contract core.Contract, payments []core.Payment, opts Options) (ContractSummary, error) {
	opts, err := c.calc.Resolve(opts)
	if err != nil {
		return ContractSummary{}, err
	}
	key := Key(contract, opts)
	if s, ok := c.store.Get(key); ok {
		return s.clone(), nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		s, err := c.calc.Compute(contract, payments, opts)
		if err != nil {
			return ContractSummary{}, err
		}
		c.store.SetInGroup(contract.ID, key, s.clone())
		return s, nil
	})
	if err != nil {
		return ContractSummary{}, err
	}
	return v.(ContractSummary).clone(), nil
}

// clone copies the slice and map so a cached entry never aliases what a
// caller holds.
func (s ContractSummary) clone() ContractSummary {
	s.Payments = slices.Clone(s.Payments)
	s.Breakdown.ByMethod = maps.Clone(s.Breakdown.ByMethod)
	return s
}

// Invalidate drops every cached summary of one contract.
func (c *Cache) Invalidate(contractID string) int {
	return c.store.DeleteGroup(contractID)
}

// Clear drops all entries.
func (c *Cache) Clear() {
	c.store.Clear()
}

func (c *Cache) Stats() cache.Stats {
	return c.store.Stats()
}

// Cleaner exposes the underlying store for periodic expiry.
func (c *Cache) Cleaner() cache.Cleaner {
	return c.store
}
