// Package controller implements the Playback Controller: the per-device
// consumer of playback-state updates that maintains the skip state machine,
// records watch time and skips via a Stats Sink, and issues seeks through a
// Lounge Session.
package controller

import (
	"context"
	"log"
	"sync"
	"time"

	"skipfleet/internal/models"
	"skipfleet/internal/segments"
)

// Seeker is the subset of the Lounge Session the controller depends on.
type Seeker interface {
	SeekTo(ctx context.Context, position float64) error
}

// StatsSink is the subset of the config/stats store the controller writes
// to. Matches internal/store's dual-write semantics.
type StatsSink interface {
	RecordVideoStarted(deviceID string) error
	RecordWatchTime(deviceID string, seconds float64) error
	RecordSegmentSkip(deviceID string, uuidCount int, categories []string, savedSeconds float64) error
	MarkDeviceSeen(deviceID string, at time.Time) error
}

// Controller is one Playback Controller for one device.
type Controller struct {
	screenID string
	seeker   Seeker
	provider segments.Provider
	stats    StatsSink
	prefs    models.EffectivePreferences
	mailbox  *mailbox

	mu            sync.Mutex
	cpn           string
	videoID       string
	ranges        []models.SkipRange
	completedUUID map[string]struct{}
	watch         *models.WatchSession
	scheduled     *models.ScheduledSkip
	timer         *time.Timer
}

// New constructs a Controller bound to one device's resolved preferences.
func New(screenID string, seeker Seeker, provider segments.Provider, stats StatsSink, prefs models.EffectivePreferences) *Controller {
	return &Controller{
		screenID:      screenID,
		seeker:        seeker,
		provider:      provider,
		stats:         stats,
		prefs:         prefs,
		mailbox:       newMailbox(),
		completedUUID: map[string]struct{}{},
	}
}

// HandleState implements lounge.StateHandler: it pushes the update into the
// coalescing queue and returns immediately.
func (c *Controller) HandleState(state models.PlaybackState) {
	c.mailbox.push(queuedState{state: state, timeStart: time.Now()})
}

// Start launches the process loop and the heartbeat loop. The returned
// channel closes once both have exited, after ctx is cancelled and the
// controller has flushed its final watch session and cancelled any pending
// skip.
func (c *Controller) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); c.processLoop(ctx) }()
	go func() { defer wg.Done(); c.heartbeatLoop(ctx) }()
	go func() { wg.Wait(); close(done) }()
	return done
}

func (c *Controller) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-c.mailbox.notify:
		}
		for {
			v, ok := c.mailbox.pop()
			if !ok {
				break
			}
			c.process(ctx, v)
		}
	}
}

// process runs the per-update algorithm. A panic here is a local bug:
// it is logged and the update is discarded, the controller continues.
func (c *Controller) process(ctx context.Context, v queuedState) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("controller %s: recovered processing update: %v", c.screenID, r)
		}
	}()

	state := v.state
	timeStart := v.timeStart

	if err := c.stats.MarkDeviceSeen(c.screenID, timeStart); err != nil {
		log.Printf("controller %s: marking device seen: %v", c.screenID, err)
	}

	c.mu.Lock()
	cpnChanged := state.CPN != "" && state.CPN != c.cpn
	videoChanged := state.VideoID != "" && state.VideoID != c.videoID
	c.mu.Unlock()

	if cpnChanged || videoChanged {
		c.flushWatch(timeStart, true)
		c.cancelScheduled()
		if cpnChanged {
			c.mu.Lock()
			c.completedUUID = map[string]struct{}{}
			c.cpn = state.CPN
			c.mu.Unlock()
		}
	}

	if videoChanged {
		if err := c.stats.RecordVideoStarted(c.screenID); err != nil {
			log.Printf("controller %s: recording video started: %v", c.screenID, err)
		}
		fetched, err := c.provider.GetSegments(ctx, state.VideoID)
		if err != nil {
			log.Printf("controller %s: fetching segments for %s: %v", c.screenID, state.VideoID, err)
			fetched = nil
		}
		c.mu.Lock()
		c.videoID = state.VideoID
		c.ranges = filterByPreferences(fetched, c.prefs)
		c.mu.Unlock()
	}

	c.updateWatch(state, timeStart)

	if state.State == models.SessionPlaying {
		c.mu.Lock()
		ranges := c.ranges
		completed := c.completedUUID
		c.mu.Unlock()
		if len(ranges) > 0 {
			c.maybeSchedule(ctx, state, timeStart, ranges, completed)
			return
		}
	}
	c.cancelScheduled()
}

// filterByPreferences drops ranges whose categories are not in the device's
// effective skip-category set, and ranges shorter than minimum_skip_length.
// A range with no categories is kept: the segment database not tagging a
// range is not the same as the user excluding it.
func filterByPreferences(ranges []models.SkipRange, prefs models.EffectivePreferences) []models.SkipRange {
	out := make([]models.SkipRange, 0, len(ranges))
	for _, r := range ranges {
		if len(r.Categories) > 0 && !anyCategoryAllowed(r.Categories, prefs) {
			continue
		}
		if r.End-r.Start < float64(prefs.MinimumSkipLength) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func anyCategoryAllowed(categories []string, prefs models.EffectivePreferences) bool {
	for _, cat := range categories {
		if prefs.HasCategory(cat) {
			return true
		}
	}
	return false
}

func (c *Controller) maybeSchedule(ctx context.Context, state models.PlaybackState, timeStart time.Time, ranges []models.SkipRange, completed map[string]struct{}) {
	found, planStart, ok := selectSkip(ranges, state.CurrentTime, completed)
	if !ok {
		c.cancelScheduled()
		return
	}

	now := time.Now()
	elapsed := now.Sub(timeStart).Seconds()
	firesIn := computeFiresIn(elapsed, planStart, state.CurrentTime, state.PlaybackSpeed, c.prefs.OffsetSeconds)

	c.mu.Lock()
	if sameDeduped(c.scheduled, state.VideoID, planStart) {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	plan := &models.ScheduledSkip{
		TargetVideo: state.VideoID,
		TargetCPN:   state.CPN,
		PlanStart:   planStart,
		PlanEnd:     found.End,
		UUIDSet:     found.UUIDSet,
		Categories:  found.Categories,
		FiresAt:     now.Add(time.Duration(firesIn * float64(time.Second))),
	}
	c.scheduled = plan
	c.timer = time.AfterFunc(time.Duration(firesIn*float64(time.Second)), func() {
		c.fireSkip(ctx, plan)
	})
	c.mu.Unlock()
}

func (c *Controller) cancelScheduled() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.scheduled = nil
}

// fireSkip issues the seek and the mark-viewed report concurrently, records
// statistics, and marks every UUID in the plan completed. Failures in any
// step are logged and swallowed.
func (c *Controller) fireSkip(ctx context.Context, plan *models.ScheduledSkip) {
	go func() {
		if err := c.seeker.SeekTo(ctx, plan.PlanEnd); err != nil {
			log.Printf("controller %s: seek failed: %v", c.screenID, err)
		}
	}()
	go func() {
		if err := c.provider.MarkViewed(ctx, plan.UUIDSet); err != nil {
			log.Printf("controller %s: mark-viewed failed: %v", c.screenID, err)
		}
	}()

	saved := plan.PlanEnd - plan.PlanStart
	if saved < 0 {
		saved = 0
	}
	if err := c.stats.RecordSegmentSkip(c.screenID, len(plan.UUIDSet), plan.Categories, saved); err != nil {
		log.Printf("controller %s: recording segment skip: %v", c.screenID, err)
	}

	c.mu.Lock()
	for _, id := range plan.UUIDSet {
		c.completedUUID[id] = struct{}{}
	}
	if c.scheduled == plan {
		c.scheduled = nil
		c.timer = nil
	}
	c.mu.Unlock()
}

// updateWatch starts a watch session when playback begins, flushes it
// periodically while it continues, and closes it on any transition away
// from playing.
func (c *Controller) updateWatch(state models.PlaybackState, timeStart time.Time) {
	if state.State != models.SessionPlaying {
		c.flushWatch(timeStart, true)
		return
	}

	c.mu.Lock()
	if c.watch == nil {
		c.watch = &models.WatchSession{StartedAt: timeStart, LastFlush: timeStart}
		c.mu.Unlock()
		return
	}
	shouldFlush := timeStart.Sub(c.watch.LastFlush) >= 5*time.Second
	c.mu.Unlock()

	if shouldFlush {
		c.flushWatch(timeStart, false)
	}
}

// flushWatch records elapsed watch time since the last flush. If close is
// true the watch session is torn down; otherwise last_flush advances.
func (c *Controller) flushWatch(at time.Time, closeSession bool) {
	c.mu.Lock()
	if c.watch == nil {
		c.mu.Unlock()
		return
	}
	delta := at.Sub(c.watch.LastFlush).Seconds()
	if closeSession {
		c.watch = nil
	} else {
		c.watch.LastFlush = at
	}
	c.mu.Unlock()

	if delta > 0 {
		if err := c.stats.RecordWatchTime(c.screenID, delta); err != nil {
			log.Printf("controller %s: recording watch time: %v", c.screenID, err)
		}
	}
}

// heartbeatLoop fires every 5s; while a watch session is open it flushes and
// re-stamps device_seen. It is dormant otherwise and exits on shutdown.
func (c *Controller) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			open := c.watch != nil
			c.mu.Unlock()
			if !open {
				continue
			}
			now := time.Now()
			c.flushWatch(now, false)
			if err := c.stats.MarkDeviceSeen(c.screenID, now); err != nil {
				log.Printf("controller %s: marking device seen: %v", c.screenID, err)
			}
		}
	}
}

func (c *Controller) shutdown() {
	c.flushWatch(time.Now(), true)
	c.cancelScheduled()
}
