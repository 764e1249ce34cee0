package sim

import "sync"

// StatePool recycles the Newton backup vectors of one layout. Vectors of
// another size are dropped on Put, so a pool outlives a relayout harmlessly.
type StatePool struct {
	vecs sync.Pool
	n    int
}

func NewStatePool(n int) *StatePool {
	p := &StatePool{n: n}
	p.vecs.New = func() any { return make(State, n) }
	return p
}

func (p *StatePool) Size() int { return p.n }

func (p *StatePool) Get() State { return p.vecs.Get().(State) }

func (p *StatePool) Put(s State) {
	if len(s) != p.n {
		return
	}
	clear(s)
	p.vecs.Put(s)
}

// GetAndCopy returns a pooled vector holding a copy of src.
func (p *StatePool) GetAndCopy(src State) State {
	dst := p.Get()
	copy(dst, src)
	return dst
}
