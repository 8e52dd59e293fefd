package atom

// Chain is the doubly-linked atom list spec.md §3 describes for a single
// output Section ("first_atom, last_atom... linked-list traversal yields
// every atom in address order"). The owning layout.Section embeds a
// Chain; atom.Pool owns the actual Atom storage so Chain only ever
// stores Index values.
type Chain struct {
	First, Last Index
}

// Append adds idx to the end of the chain.
func (c *Chain) Append(pool *Pool, idx Index) {
	a := pool.Get(idx)
	a.prev, a.next = c.Last, Null
	if c.Last != Null {
		pool.Get(c.Last).next = idx
	} else {
		c.First = idx
	}
	c.Last = idx
}

// InsertAfter splices idx into the chain immediately after at, used by
// the aarch64 thunk-insertion pass (spec.md §4.5 step 5) to place a
// thunk atom next to the code section atom containing its out-of-range
// branch.
func (c *Chain) InsertAfter(pool *Pool, at, idx Index) {
	a := pool.Get(at)
	next := a.next
	pool.Get(idx).prev = at
	pool.Get(idx).next = next
	a.next = idx
	if next != Null {
		pool.Get(next).prev = idx
	} else {
		c.Last = idx
	}
}

// Walk calls fn for every atom in the chain in order. Returning false
// from fn stops the walk early.
func (c *Chain) Walk(pool *Pool, fn func(Index, *Atom) bool) {
	for i := c.First; i != Null; {
		a := pool.Get(i)
		next := a.next
		if !fn(i, a) {
			return
		}
		i = next
	}
}

// Count returns the number of atoms currently in the chain.
func (c *Chain) Count(pool *Pool) int {
	n := 0
	c.Walk(pool, func(Index, *Atom) bool { n++; return true })
	return n
}
