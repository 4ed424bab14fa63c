package domain

import "fmt"

// Handle identifies a registered listener. Handles start at 1 and are
// never reused for the lifetime of a registry.
type Handle uint64

func (h Handle) String() string {
	return fmt.Sprintf("%d", uint64(h))
}

// Callback is invoked with the latest snapshot of a projection and the
// projection's id. Returning a nil Resumable means the work is complete;
// a non-nil Resumable is stepped by the scheduler until it reports done.
type Callback func(data any, projectionID string) (Resumable, error)

// ValidateProjectionIDs checks that ids is a non-empty sequence of
// non-empty strings and returns it with duplicates removed, keeping the
// first occurrence of each id.
func ValidateProjectionIDs(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: projection ids must not be empty", ErrInvalidArgument)
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if id == "" {
			return nil, fmt.Errorf("%w: projection id at index %d is empty", ErrInvalidArgument, i)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
