package dae

// SeqCache remembers the snapshot a set of derived quantities was computed
// for.
type SeqCache struct {
	seq uint64
}

// Stale reports whether values derived for seqID must be recomputed and
// records seqID as current. A zero seqID is always stale.
func (c *SeqCache) Stale(seqID uint64) bool {
	if seqID == 0 || seqID != c.seq {
		c.seq = seqID
		return true
	}
	return false
}

// Invalidate forgets the recorded snapshot.
func (c *SeqCache) Invalidate() { c.seq = 0 }

// Derived caches one value computed from a snapshot.
type Derived[T any] struct {
	cache SeqCache
	value T
}

// Get returns the cached value for seqID, calling compute when it is stale.
// compute must depend only on the snapshot, the inputs and committed fields
// of its owner.
func (d *Derived[T]) Get(seqID uint64, compute func() T) T {
	if d.cache.Stale(seqID) {
		d.value = compute()
	}
	return d.value
}

// Invalidate forces the next Get to recompute.
func (d *Derived[T]) Invalidate() { d.cache.Invalidate() }
