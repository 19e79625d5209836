// Package models holds the shared domain types for the device control plane:
// the persisted device configuration, the effective per-session preferences
// derived from it, and the playback/skip state a controller tracks for one
// connected device.
package models

import (
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("device unavailable")
	ErrNotConnected = errors.New("not connected")
)

// DeviceSnapshot is the persisted, reconciler-visible view of one configured
// device. ScreenID is its identity; Name and OffsetMs are mutable; Overrides
// selectively masks the global settings.
type DeviceSnapshot struct {
	ScreenID  string    `json:"screen_id"`
	Name      string    `json:"name"`
	OffsetMs  int64     `json:"offset_ms"`
	Overrides Overrides `json:"overrides"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OffsetSeconds converts the persisted millisecond offset to the floating
// point seconds value used by scheduling arithmetic.
func (d DeviceSnapshot) OffsetSeconds() float64 {
	return float64(d.OffsetMs) / 1000.0
}

// IdentityEqual reports whether two snapshots of the same screen_id carry the
// same identity-bearing fields (name, offset, overrides).
// Offset is compared with a 1ms tolerance; the rest by exact equality.
func (d DeviceSnapshot) IdentityEqual(other DeviceSnapshot) bool {
	if d.Name != other.Name {
		return false
	}
	diff := d.OffsetMs - other.OffsetMs
	if diff < 0 {
		diff = -diff
	}
	if diff > 1 {
		return false
	}
	return d.Overrides.Equal(other.Overrides)
}

// Automation holds the four per-device automation toggles. A nil pointer
// field means "defer to global"; a non-nil pointer is an explicit override.
type Automation struct {
	SkipAds           *bool `json:"skip_ads,omitempty"`
	MuteAds           *bool `json:"mute_ads,omitempty"`
	SkipCountTracking *bool `json:"skip_count_tracking,omitempty"`
	AutoPlay          *bool `json:"auto_play,omitempty"`
}

func (a Automation) Equal(other Automation) bool {
	return boolPtrEqual(a.SkipAds, other.SkipAds) &&
		boolPtrEqual(a.MuteAds, other.MuteAds) &&
		boolPtrEqual(a.SkipCountTracking, other.SkipCountTracking) &&
		boolPtrEqual(a.AutoPlay, other.AutoPlay)
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ChannelEntry is one whitelisted channel.
type ChannelEntry struct {
	ChannelID   string `json:"channel_id"`
	DisplayName string `json:"display_name"`
}

// Overrides selectively masks the global settings for one device. A nil slice
// means "defer to global"; a non-nil empty slice means "override to empty".
type Overrides struct {
	Automation       Automation     `json:"automation"`
	SkipCategories   []string       `json:"skip_categories"`
	ChannelWhitelist []ChannelEntry `json:"channel_whitelist"`
}

func (o Overrides) Equal(other Overrides) bool {
	if !o.Automation.Equal(other.Automation) {
		return false
	}
	if !stringSliceEqual(o.SkipCategories, other.SkipCategories) {
		return false
	}
	if (o.ChannelWhitelist == nil) != (other.ChannelWhitelist == nil) {
		return false
	}
	if len(o.ChannelWhitelist) != len(other.ChannelWhitelist) {
		return false
	}
	for i := range o.ChannelWhitelist {
		if o.ChannelWhitelist[i] != other.ChannelWhitelist[i] {
			return false
		}
	}
	return true
}

func stringSliceEqual(a, b []string) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GlobalSettings is the config store's `settings` row, projected to a struct.
type GlobalSettings struct {
	APIKey            string
	SkipCountTracking bool
	MuteAds           bool
	SkipAds           bool
	MinimumSkipLength int
	AutoPlay          bool
	JoinName          string
	UseProxy          bool
	SkipCategories    []string
	ChannelWhitelist  []ChannelEntry
}

// EffectivePreferences is the immutable, per-session snapshot a supervisor
// resolves once at startup from (GlobalSettings, Overrides).
type EffectivePreferences struct {
	JoinName          string
	APIKey            string
	SkipCategories    map[string]struct{}
	ChannelWhitelist  map[string]string // channel_id -> display_name
	SkipCountTracking bool
	MuteAds           bool
	SkipAds           bool
	AutoPlay          bool
	OffsetSeconds     float64
	MinimumSkipLength int
}

func (p EffectivePreferences) HasCategory(cat string) bool {
	_, ok := p.SkipCategories[cat]
	return ok
}

// SessionState mirrors the lounge device's reported playback state.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionPlaying
	SessionPaused
	SessionBuffering
	SessionAdvert
)

// PlaybackState is one update received from the Lounge Session.
type PlaybackState struct {
	VideoID       string
	CPN           string
	State         SessionState
	CurrentTime   float64
	PlaybackSpeed float64
}

// SkipRange is one candidate skip window for a video, as returned by the
// Segment Provider.
type SkipRange struct {
	Start      float64
	End        float64
	UUIDSet    []string
	Categories []string
}

// Malformed reports whether the range should be dropped before scheduling.
func (r SkipRange) Malformed() bool {
	return r.Start > r.End || len(r.UUIDSet) == 0
}

// ScheduledSkip is the single pending plan a controller may have installed.
type ScheduledSkip struct {
	TargetVideo string
	TargetCPN   string
	PlanStart   float64
	PlanEnd     float64
	UUIDSet     []string
	Categories  []string
	FiresAt     time.Time
}

// WatchSession is the ephemeral bookkeeping for one contiguous "playing" run.
type WatchSession struct {
	StartedAt time.Time
	LastFlush time.Time
}
