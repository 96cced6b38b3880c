package quota

import (
	"context"
	"errors"
)

// ErrCorrupt indicates the persisted quota data could not be parsed.
// Callers must surface this as a server error rather than resetting
// counts, otherwise the ceiling invariant is lost.
var ErrCorrupt = errors.New("quota store data is corrupt")

// Store tracks request counts per client identifier.
type Store interface {
	// Get returns the current count for clientID, 0 if unseen.
	Get(ctx context.Context, clientID string) (int, error)

	// Increment adds one to the count for clientID, persists it, and
	// returns the new value.
	Increment(ctx context.Context, clientID string) (int, error)
}
