package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"skipfleet/internal/models"
)

type fakeSeeker struct {
	mu    sync.Mutex
	seeks []float64
}

func (f *fakeSeeker) SeekTo(ctx context.Context, position float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, position)
	return nil
}

func (f *fakeSeeker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seeks)
}

type fakeProvider struct {
	mu       sync.Mutex
	ranges   map[string][]models.SkipRange
	viewed   []string
	fetchLog []string
}

func (f *fakeProvider) GetSegments(ctx context.Context, videoID string) ([]models.SkipRange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchLog = append(f.fetchLog, videoID)
	return f.ranges[videoID], nil
}

func (f *fakeProvider) MarkViewed(ctx context.Context, uuidSet []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewed = append(f.viewed, uuidSet...)
	return nil
}

type fakeStats struct {
	mu               sync.Mutex
	videosWatched    int
	watchTimeSeconds float64
	segmentsSkipped  int
	timeSaved        float64
	categories       map[string]int
	lastSeenCalls    int
}

func newFakeStats() *fakeStats {
	return &fakeStats{categories: map[string]int{}}
}

func (f *fakeStats) RecordVideoStarted(deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.videosWatched++
	return nil
}

func (f *fakeStats) RecordWatchTime(deviceID string, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchTimeSeconds += seconds
	return nil
}

func (f *fakeStats) RecordSegmentSkip(deviceID string, uuidCount int, categories []string, savedSeconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segmentsSkipped += uuidCount
	f.timeSaved += savedSeconds
	for _, c := range categories {
		f.categories[c]++
	}
	return nil
}

func (f *fakeStats) MarkDeviceSeen(deviceID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeenCalls++
	return nil
}

func fullPrefs() models.EffectivePreferences {
	return models.EffectivePreferences{
		SkipCategories: map[string]struct{}{"sponsor": {}},
	}
}

func TestControllerSingleSkipS1(t *testing.T) {
	seeker := &fakeSeeker{}
	provider := &fakeProvider{ranges: map[string][]models.SkipRange{
		"v1": {{Start: 0.05, End: 0.10, UUIDSet: []string{"u1"}, Categories: []string{"sponsor"}}},
	}}
	stats := newFakeStats()
	c := New("d1", seeker, provider, stats, fullPrefs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := c.Start(ctx)

	c.HandleState(models.PlaybackState{VideoID: "v1", CPN: "c1", State: models.SessionPlaying, CurrentTime: 0.0, PlaybackSpeed: 1.0})

	require.Eventually(t, func() bool { return seeker.count() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		stats.mu.Lock()
		defer stats.mu.Unlock()
		return stats.segmentsSkipped == 1
	}, time.Second, 5*time.Millisecond)

	stats.mu.Lock()
	require.InDelta(t, 0.05, stats.timeSaved, 0.01)
	require.Equal(t, 1, stats.categories["sponsor"])
	stats.mu.Unlock()

	cancel()
	<-done
}

func TestControllerDedupeS3(t *testing.T) {
	seeker := &fakeSeeker{}
	provider := &fakeProvider{ranges: map[string][]models.SkipRange{
		"v1": {{Start: 0.2, End: 0.3, UUIDSet: []string{"u1"}, Categories: []string{"sponsor"}}},
	}}
	stats := newFakeStats()
	c := New("d1", seeker, provider, stats, fullPrefs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := c.Start(ctx)

	c.HandleState(models.PlaybackState{VideoID: "v1", CPN: "c1", State: models.SessionPlaying, CurrentTime: 0.0, PlaybackSpeed: 1.0})
	time.Sleep(20 * time.Millisecond)
	// second update with a nearly identical plan_start should not replace the
	// installed timer
	c.HandleState(models.PlaybackState{VideoID: "v1", CPN: "c1", State: models.SessionPlaying, CurrentTime: 0.001, PlaybackSpeed: 1.0})

	require.Eventually(t, func() bool { return seeker.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, seeker.count())

	cancel()
	<-done
}

func TestControllerVideoChangeFetchesOncePerDistinctVideo(t *testing.T) {
	seeker := &fakeSeeker{}
	provider := &fakeProvider{ranges: map[string][]models.SkipRange{}}
	stats := newFakeStats()
	c := New("d1", seeker, provider, stats, fullPrefs())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := c.Start(ctx)

	c.HandleState(models.PlaybackState{VideoID: "v1", CPN: "c1", State: models.SessionPlaying, CurrentTime: 0, PlaybackSpeed: 1.0})
	time.Sleep(20 * time.Millisecond)
	c.HandleState(models.PlaybackState{VideoID: "v2", CPN: "c2", State: models.SessionPlaying, CurrentTime: 0, PlaybackSpeed: 1.0})
	time.Sleep(20 * time.Millisecond)

	stats.mu.Lock()
	require.Equal(t, 2, stats.videosWatched)
	stats.mu.Unlock()

	provider.mu.Lock()
	require.Equal(t, []string{"v1", "v2"}, provider.fetchLog)
	provider.mu.Unlock()

	cancel()
	<-done
}

func TestControllerWatchTimeFlushedOnPause(t *testing.T) {
	seeker := &fakeSeeker{}
	provider := &fakeProvider{ranges: map[string][]models.SkipRange{}}
	stats := newFakeStats()
	c := New("d1", seeker, provider, stats, fullPrefs())

	ctx, cancel := context.WithCancel(context.Background())
	done := c.Start(ctx)

	c.HandleState(models.PlaybackState{VideoID: "v1", CPN: "c1", State: models.SessionPlaying, CurrentTime: 0, PlaybackSpeed: 1.0})
	time.Sleep(20 * time.Millisecond)
	c.HandleState(models.PlaybackState{VideoID: "v1", CPN: "c1", State: models.SessionPaused, CurrentTime: 1, PlaybackSpeed: 1.0})
	time.Sleep(20 * time.Millisecond)

	stats.mu.Lock()
	require.Greater(t, stats.watchTimeSeconds, 0.0)
	stats.mu.Unlock()

	cancel()
	<-done
}
