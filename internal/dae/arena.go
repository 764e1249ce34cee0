package dae

import "fmt"

// ID is a component handle. Zero is never issued.
type ID uint64

// NoID is the handle of nothing, e.g. the parent of a root component.
const NoID ID = 0

// Arena owns component handles and default-name counters for one model.
// Parent links are stored as IDs and resolved through the arena, so a
// destroyed component can be detected instead of dereferenced.
type Arena struct {
	next   ID
	nodes  map[ID]Component
	counts map[string]int
}

func NewArena() *Arena {
	return &Arena{
		nodes:  make(map[ID]Component),
		counts: make(map[string]int),
	}
}

// Register issues a handle to c and names it "<kind>_<n>", counting per kind.
// A component is usable only after it has been registered.
func (a *Arena) Register(c Component, kind string) ID {
	b := c.Node()
	if b.id != NoID {
		panic(&ContractViolation{Object: b.name, Reason: "component registered twice"})
	}
	a.next++
	a.counts[kind]++

	b.id = a.next
	b.kind = kind
	b.name = fmt.Sprintf("%s_%d", kind, a.counts[kind])
	b.enabled = true
	b.arena = a
	a.nodes[b.id] = c
	return b.id
}

// Lookup resolves a handle.
func (a *Arena) Lookup(id ID) (Component, bool) {
	if id == NoID {
		return nil, false
	}
	c, ok := a.nodes[id]
	return c, ok
}

// Len returns the number of live components.
func (a *Arena) Len() int { return len(a.nodes) }

// Destroy detaches c from its parent and releases the handles of c and its
// whole subtree.
func (a *Arena) Destroy(c Component) {
	b := c.Node()
	if p, ok := b.Parent(); ok {
		p.Node().RemoveChild(c)
	}
	a.release(c)
}

func (a *Arena) release(c Component) {
	b := c.Node()
	for _, ch := range b.children {
		a.release(ch)
	}
	delete(a.nodes, b.id)
	b.children = nil
	b.parent = NoID
	b.arena = nil
}
