package queue

import "github.com/notifyhub/gyre/internal/domain"

// Item is one pending (listener, projection) unit of work.
// The snapshot itself is not carried; it is read from the snapshot store
// when the item runs, so a late item always sees the latest data.
type Item struct {
	ProjectionID string
	Listener     domain.Handle
	Priority     int

	// Continuation is set once the listener's callback has returned a
	// multi-step task that has not finished yet.
	Continuation domain.Resumable
}
