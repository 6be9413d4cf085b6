package cache

// Identity is implemented by entities that carry a stable id assigned at
// construction. ChainMap keys on ids, so it never retains an entity.
type Identity interface {
	ID() uint64
}

type chainNode[V any] struct {
	children map[uint64]*chainNode[V]
	value    V
	set      bool
}

func (n *chainNode[V]) empty() bool {
	return !n.set && len(n.children) == 0
}

// ChainMap maps an ordered sequence of identities to a value.
//
// Set([a, b, c], v) stores v under c inside the nodes for a then b.
// Order matters: [a, b, c] and [a, c, b] are different keys, and a
// prefix such as [a, b] is not a key unless set on its own.
type ChainMap[V any] struct {
	root chainNode[V]
	size int
}

// NewChainMap creates an empty ChainMap.
func NewChainMap[V any]() *ChainMap[V] {
	return &ChainMap[V]{}
}

// Get returns the value stored under keys.
func (m *ChainMap[V]) Get(keys []Identity) (V, bool) {
	var zero V
	n := m.find(keys)
	if n == nil || !n.set {
		return zero, false
	}
	return n.value, true
}

// Set stores v under keys, creating intermediate nodes as needed.
// Set panics on an empty key sequence.
func (m *ChainMap[V]) Set(keys []Identity, v V) {
	if len(keys) == 0 {
		panic("cache: empty chain key")
	}
	n := &m.root
	for _, k := range keys {
		if n.children == nil {
			n.children = make(map[uint64]*chainNode[V])
		}
		child, ok := n.children[k.ID()]
		if !ok {
			child = &chainNode[V]{}
			n.children[k.ID()] = child
		}
		n = child
	}
	if !n.set {
		m.size++
	}
	n.value = v
	n.set = true
}

// Delete removes the value stored under keys and prunes nodes left
// empty. It returns false if the full path does not exist.
func (m *ChainMap[V]) Delete(keys []Identity) bool {
	if len(keys) == 0 {
		return false
	}
	path := make([]*chainNode[V], 0, len(keys)+1)
	n := &m.root
	path = append(path, n)
	for _, k := range keys {
		child, ok := n.children[k.ID()]
		if !ok {
			return false
		}
		n = child
		path = append(path, n)
	}
	if !n.set {
		return false
	}
	var zero V
	n.value = zero
	n.set = false
	m.size--

	for i := len(keys) - 1; i >= 0; i-- {
		if !path[i+1].empty() {
			break
		}
		delete(path[i].children, keys[i].ID())
	}
	return true
}

// Len returns the number of stored values.
func (m *ChainMap[V]) Len() int {
	return m.size
}

// Range calls fn for every stored value until fn returns false.
// The map must not be modified during iteration.
func (m *ChainMap[V]) Range(fn func(V) bool) {
	m.root.walk(fn)
}

func (n *chainNode[V]) walk(fn func(V) bool) bool {
	if n.set && !fn(n.value) {
		return false
	}
	for _, child := range n.children {
		if !child.walk(fn) {
			return false
		}
	}
	return true
}

// Clear removes every value.
func (m *ChainMap[V]) Clear() {
	m.root = chainNode[V]{}
	m.size = 0
}

func (m *ChainMap[V]) find(keys []Identity) *chainNode[V] {
	if len(keys) == 0 {
		return nil
	}
	n := &m.root
	for _, k := range keys {
		child, ok := n.children[k.ID()]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}
