package core

import "sync/atomic"

var lastID atomic.Uint64

// NextID returns a process-unique id. Ids start at 1, so 0 can mark "none".
func NextID() uint64 {
	return lastID.Add(1)
}

type listener struct {
	id int
	fn func()
}

// Disposer fans a dispose notification out to listeners.
//
// Listeners are called in registration order. A listener that should run
// only once removes itself with the function returned by OnDispose; the
// renderer's caches always do.
type Disposer struct {
	next      int
	listeners []listener
}

// OnDispose registers fn and returns a function that unregisters it.
// Calling the returned function more than once is harmless.
func (d *Disposer) OnDispose(fn func()) (remove func()) {
	d.next++
	id := d.next
	d.listeners = append(d.listeners, listener{id: id, fn: fn})
	return func() { d.remove(id) }
}

// Dispose notifies the current listeners.
func (d *Disposer) Dispose() {
	snapshot := make([]listener, len(d.listeners))
	copy(snapshot, d.listeners)
	for _, l := range snapshot {
		if d.registered(l.id) {
			l.fn()
		}
	}
}

// Listeners returns the number of registered listeners.
func (d *Disposer) Listeners() int {
	return len(d.listeners)
}

func (d *Disposer) remove(id int) {
	for i, l := range d.listeners {
		if l.id == id {
			d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
			return
		}
	}
}

func (d *Disposer) registered(id int) bool {
	for _, l := range d.listeners {
		if l.id == id {
			return true
		}
	}
	return false
}
