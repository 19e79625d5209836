// Package segments is the Segment Provider: given a video identifier it
// returns the ordered list of skip ranges the Playback Controller schedules
// against, and accepts fire-and-forget "viewed" acknowledgements once a skip
// fires. The wire format of the external segment database is not pinned by
// this repository; Client below is one concrete implementation of Provider
// against a SponsorBlock-compatible API, the same external service the
// original tool consulted.
package segments

import (
	"context"

	"skipfleet/internal/models"
)

// Provider is the interface the Playback Controller depends on. Both
// methods may be called concurrently for different videos/uuid sets.
type Provider interface {
	// GetSegments returns the skip ranges for videoID, ascending by start.
	// Implementations may cache; a transient fetch failure is the caller's
	// concern to log and swallow rather than propagate.
	GetSegments(ctx context.Context, videoID string) ([]models.SkipRange, error)

	// MarkViewed reports that the ranges owning uuidSet were actually
	// skipped. Fire-and-forget: no delivery-order guarantee, and callers
	// must not block scheduling on its return.
	MarkViewed(ctx context.Context, uuidSet []string) error
}
