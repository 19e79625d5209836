// Package preferences resolves the effective per-session preferences for one
// device from the global configuration and that device's overrides. It is a
// pure function: no I/O, no shared state, safe to call every time a
// supervisor (re)starts.
package preferences

import "skipfleet/internal/models"

// Resolve derives EffectivePreferences for one device. offsetSeconds comes
// from the device snapshot itself, not from overrides, and always wins.
//
// A nil Overrides.SkipCategories / ChannelWhitelist defers to the global
// value; a non-nil (possibly empty) one replaces it outright. Each
// automation flag defers individually to the corresponding global flag when
// its override pointer is nil.
func Resolve(global models.GlobalSettings, overrides models.Overrides, offsetSeconds float64) models.EffectivePreferences {
	p := models.EffectivePreferences{
		JoinName:          global.JoinName,
		APIKey:            global.APIKey,
		OffsetSeconds:     offsetSeconds,
		MinimumSkipLength: global.MinimumSkipLength,
		SkipCountTracking: resolveBool(overrides.Automation.SkipCountTracking, global.SkipCountTracking),
		MuteAds:           resolveBool(overrides.Automation.MuteAds, global.MuteAds),
		SkipAds:           resolveBool(overrides.Automation.SkipAds, global.SkipAds),
		AutoPlay:          resolveBool(overrides.Automation.AutoPlay, global.AutoPlay),
	}

	categories := global.SkipCategories
	if overrides.SkipCategories != nil {
		categories = overrides.SkipCategories
	}
	p.SkipCategories = make(map[string]struct{}, len(categories))
	for _, c := range categories {
		p.SkipCategories[c] = struct{}{}
	}

	channels := global.ChannelWhitelist
	if overrides.ChannelWhitelist != nil {
		channels = overrides.ChannelWhitelist
	}
	p.ChannelWhitelist = make(map[string]string, len(channels))
	for _, c := range channels {
		p.ChannelWhitelist[c.ChannelID] = c.DisplayName
	}

	return p
}

func resolveBool(override *bool, global bool) bool {
	if override != nil {
		return *override
	}
	return global
}
