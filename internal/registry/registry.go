// Package registry keeps the set of registered listeners and which
// projections each one is subscribed to.
package registry

import (
	"slices"

	"github.com/notifyhub/gyre/internal/domain"
)

// Listener is a registered callback. Registry hands out copies from List;
// the scheduler works with the pointer returned by Get.
type Listener struct {
	Handle        domain.Handle
	Name          string
	ProjectionIDs []string
	Priority      int
	Callback      domain.Callback
}

// Registry maps handles to listeners and keeps a per-projection index of
// subscribers in registration order. Not safe for concurrent use.
type Registry struct {
	next      domain.Handle
	listeners map[domain.Handle]*Listener
	index     map[string][]domain.Handle
}

func New() *Registry {
	return &Registry{
		next:      1,
		listeners: make(map[domain.Handle]*Listener),
		index:     make(map[string][]domain.Handle),
	}
}

// Add stores a new listener under a fresh handle. ids must already be
// validated and de-duplicated.
func (r *Registry) Add(name string, ids []string, priority int, cb domain.Callback) *Listener {
	l := &Listener{
		Handle:        r.next,
		Name:          name,
		ProjectionIDs: slices.Clone(ids),
		Priority:      priority,
		Callback:      cb,
	}
	r.next++

	r.listeners[l.Handle] = l
	for _, id := range l.ProjectionIDs {
		// handles only grow, so appending keeps each slice sorted
		r.index[id] = append(r.index[id], l.Handle)
	}
	return l
}

func (r *Registry) Get(h domain.Handle) (*Listener, bool) {
	l, ok := r.listeners[h]
	return l, ok
}

// Unsubscribe removes ids from the listener's subscriptions and deletes
// the listener once none remain. ok is false for an unknown handle.
func (r *Registry) Unsubscribe(h domain.Handle, ids []string) (deleted, ok bool) {
	l, ok := r.listeners[h]
	if !ok {
		return false, false
	}

	remaining := l.ProjectionIDs[:0:0]
	for _, id := range l.ProjectionIDs {
		if slices.Contains(ids, id) {
			r.unindex(id, h)
			continue
		}
		remaining = append(remaining, id)
	}
	l.ProjectionIDs = remaining

	if len(remaining) == 0 {
		delete(r.listeners, h)
		return true, true
	}
	return false, true
}

// Subscribers returns the listeners subscribed to projectionID in the
// order they were registered.
func (r *Registry) Subscribers(projectionID string) []*Listener {
	handles := r.index[projectionID]
	out := make([]*Listener, 0, len(handles))
	for _, h := range handles {
		out = append(out, r.listeners[h])
	}
	return out
}

// List returns copies of all listeners ordered by handle.
func (r *Registry) List() []Listener {
	out := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		c := *l
		c.ProjectionIDs = slices.Clone(l.ProjectionIDs)
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Listener) int {
		switch {
		case a.Handle < b.Handle:
			return -1
		case a.Handle > b.Handle:
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) Len() int {
	return len(r.listeners)
}

func (r *Registry) unindex(id string, h domain.Handle) {
	handles := slices.DeleteFunc(r.index[id], func(x domain.Handle) bool { return x == h })
	if len(handles) == 0 {
		delete(r.index, id)
		return
	}
	r.index[id] = handles
}
