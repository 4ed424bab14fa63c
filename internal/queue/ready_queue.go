package queue

// ReadyQueue holds pending items sorted ascending by priority from head
// (index 0) to tail. Pop always takes the tail, so the highest priority
// item runs first.
//
// Among equal priorities the most recently inserted item sits nearer the
// tail and is popped first:
//
//	Insert(A, 1); Insert(B, 1)  =>  [A B]  =>  Pop() == B
//
// The queue is not safe for concurrent use; the scheduler owns it.
type ReadyQueue struct {
	items []*Item
}

func New() *ReadyQueue {
	return &ReadyQueue{items: make([]*Item, 0, 64)}
}

// Insert places it according to its priority:
//  1. empty queue, or above the tail's priority: append at the tail
//  2. below the head's priority: prepend at the head
//  3. otherwise: walk back from the tail to the first item with priority
//     <= it.Priority and insert right after it
func (q *ReadyQueue) Insert(it *Item) {
	n := len(q.items)

	if n == 0 || it.Priority > q.items[n-1].Priority {
		q.items = append(q.items, it)
		return
	}

	if it.Priority < q.items[0].Priority {
		q.items = append(q.items, nil)
		copy(q.items[1:], q.items)
		q.items[0] = it
		return
	}

	i := n - 1
	for i > 0 && q.items[i].Priority > it.Priority {
		i--
	}
	q.insertAt(i+1, it)
}

// PushTail appends it at the tail regardless of priority, making it the
// next item Pop returns. Used for continuations.
func (q *ReadyQueue) PushTail(it *Item) {
	q.items = append(q.items, it)
}

// Pop removes and returns the tail item.
func (q *ReadyQueue) Pop() (*Item, bool) {
	n := len(q.items)
	if n == 0 {
		return nil, false
	}
	it := q.items[n-1]
	q.items[n-1] = nil // release for GC
	q.items = q.items[:n-1]
	return it, true
}

// Purge removes every item whose projection id is in ids, whichever
// listener it belongs to. Relative order of the survivors is kept.
// Returns the number of removed items.
func (q *ReadyQueue) Purge(ids []string) int {
	if len(ids) == 0 || len(q.items) == 0 {
		return 0
	}
	target := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		target[id] = struct{}{}
	}

	kept := q.items[:0]
	for _, it := range q.items {
		if _, ok := target[it.ProjectionID]; ok {
			continue
		}
		kept = append(kept, it)
	}
	removed := len(q.items) - len(kept)
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = kept
	return removed
}

// Len returns the number of pending items.
func (q *ReadyQueue) Len() int {
	return len(q.items)
}

// Depths returns the number of pending items per priority.
func (q *ReadyQueue) Depths() map[int]int {
	out := make(map[int]int)
	for _, it := range q.items {
		out[it.Priority]++
	}
	return out
}

// Snapshot returns copies of the pending items, head to tail.
func (q *ReadyQueue) Snapshot() []Item {
	out := make([]Item, len(q.items))
	for i, it := range q.items {
		out[i] = *it
	}
	return out
}

func (q *ReadyQueue) insertAt(i int, it *Item) {
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = it
}
