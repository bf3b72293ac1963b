// Package advanceorder creates, submits and tracks advance orders: batches of
// bins pre-allocated to the storage manager ahead of a normal phase.
package advanceorder

import "mosaic/internal/inventory"

// Order is a named batch of bins.
type Order struct {
	Name string
	Bins []inventory.Bin
}

// Book holds orders keyed by name in insertion order. The oldest order is
// always the first one to be handed to a station group.
//
// A Book is not safe for concurrent use; each run owns its own.
type Book struct {
	names  []string
	orders map[string]Order
}

// NewBook returns an empty Book.
func NewBook() *Book {
	return &Book{orders: make(map[string]Order)}
}

// Len returns the number of pending orders.
func (b *Book) Len() int {
	return len(b.names)
}

// Put inserts o at the back. An order with the same name is replaced in
// place and keeps its position.
func (b *Book) Put(o Order) {
	if _, ok := b.orders[o.Name]; !ok {
		b.names = append(b.names, o.Name)
	}
	b.orders[o.Name] = o
}

// Merge appends the orders of other that are not already present. Existing
// entries are left untouched.
func (b *Book) Merge(other *Book) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		if _, ok := b.orders[name]; ok {
			continue
		}
		b.Put(other.orders[name])
	}
}

// Get returns the order with the given name.
func (b *Book) Get(name string) (Order, bool) {
	o, ok := b.orders[name]
	return o, ok
}

// Oldest returns the first inserted order still pending.
func (b *Book) Oldest() (Order, bool) {
	if len(b.names) == 0 {
		return Order{}, false
	}
	return b.orders[b.names[0]], true
}

// PopOldest removes and returns the first inserted order.
func (b *Book) PopOldest() (Order, bool) {
	o, ok := b.Oldest()
	if !ok {
		return Order{}, false
	}
	b.names = b.names[1:]
	delete(b.orders, o.Name)
	return o, true
}

// Remove deletes the named order and reports whether it was present.
func (b *Book) Remove(name string) bool {
	if _, ok := b.orders[name]; !ok {
		return false
	}
	delete(b.orders, name)
	for i, n := range b.names {
		if n == name {
			b.names = append(b.names[:i], b.names[i+1:]...)
			break
		}
	}
	return true
}

// Orders returns the pending orders, oldest first.
func (b *Book) Orders() []Order {
	out := make([]Order, len(b.names))
	for i, name := range b.names {
		out[i] = b.orders[name]
	}
	return out
}
