package controller

import (
	"skipfleet/internal/models"
)

// epsilon guards against scheduling a skip whose target is effectively the
// current position.
const epsilon = 0.25

// dedupeTolerance is how close two plan_start values have to be for a
// replacement to be treated as a no-op.
const dedupeTolerance = 0.05

// selectSkip runs the skip-selection algorithm over ranges (already sorted
// ascending by start) given current position p and the set of UUIDs already
// skipped for the active cpn. It never reproduces the deprecated
// "position < 1 < segment_end" guard from an earlier draft.
func selectSkip(ranges []models.SkipRange, p float64, completed map[string]struct{}) (models.SkipRange, float64, bool) {
	for _, r := range ranges {
		if r.Malformed() {
			continue
		}
		if allCompleted(r.UUIDSet, completed) {
			continue
		}
		switch {
		case r.Start <= p && p < r.End-epsilon:
			return r, p, true
		case r.Start > p:
			return r, r.Start, true
		}
	}
	return models.SkipRange{}, 0, false
}

func allCompleted(uuidSet []string, completed map[string]struct{}) bool {
	for _, id := range uuidSet {
		if _, ok := completed[id]; !ok {
			return false
		}
	}
	return true
}

// computeFiresIn implements the skip-scheduling arithmetic, returning the
// (non-negative) duration from now until the skip should fire.
func computeFiresIn(elapsedSeconds, planStart, p, playbackSpeed, offsetSeconds float64) float64 {
	if playbackSpeed <= 0 {
		playbackSpeed = 1.0
	}
	timeToNext := (planStart-p-elapsedSeconds)/playbackSpeed - offsetSeconds
	if timeToNext < 0 {
		timeToNext = 0
	}
	return timeToNext
}

// sameDeduped reports whether existing should be left in place in favor of
// rescheduling for a new candidate in the same video.
func sameDeduped(existing *models.ScheduledSkip, videoID string, newPlanStart float64) bool {
	if existing == nil || existing.TargetVideo != videoID {
		return false
	}
	diff := existing.PlanStart - newPlanStart
	if diff < 0 {
		diff = -diff
	}
	return diff < dedupeTolerance
}
