package capture

import "sync"

// Mailbox is a single-slot, latest-value buffer. A write overwrites any
// unread prior value; reads never block and always see the freshest value.
type Mailbox[T any] struct {
	mu  sync.Mutex
	v   T
	set bool
}

// Put stores v, replacing whatever was there.
func (m *Mailbox[T]) Put(v T) {
	m.mu.Lock()
	m.v = v
	m.set = true
	m.mu.Unlock()
}

// Latest returns the most recent value, if any.
func (m *Mailbox[T]) Latest() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v, m.set
}

// Clear discards the stored value.
func (m *Mailbox[T]) Clear() {
	m.mu.Lock()
	var zero T
	m.v = zero
	m.set = false
	m.mu.Unlock()
}
