// Package scheduler fans projection updates out to registered listeners.
//
// Every (listener, projection) pair that needs to run becomes an item in a
// ready queue ordered by listener priority. RunOnce drains that queue from
// the highest priority down until the time budget for the pass is spent.
//
// A callback may return a domain.Resumable instead of finishing in one
// call. The scheduler steps it once, and if it is not done puts it straight
// back at the tail of the queue, so it keeps running step after step until
// it finishes or the pass runs out of budget. Priority decides which task
// starts next; a started task owns the scheduler until it is done.
//
// The budget is only checked between items and steps. A pass over a
// non-empty queue always executes at least one item, even with a zero
// budget.
//
// A Scheduler is not safe for concurrent use. One goroutine must own it;
// see worker.Driver.
package scheduler
