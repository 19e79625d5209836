package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"skipfleet/internal/models"
)

func TestDeviceCRUD(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	d := models.DeviceSnapshot{
		ScreenID: "screen-1",
		Name:     "Living Room",
		OffsetMs: 250,
	}
	require.NoError(t, s.CreateDevice(d))

	got, err := s.GetDevice("screen-1")
	require.NoError(t, err)
	require.Equal(t, "Living Room", got.Name)
	require.Equal(t, int64(250), got.OffsetMs)

	_, err = s.GetDevice("missing")
	require.ErrorIs(t, err, models.ErrNotFound)

	skipAds := true
	got.Name = "Bedroom"
	got.Overrides.Automation.SkipAds = &skipAds
	require.NoError(t, s.UpdateDevice(got))

	updated, err := s.GetDevice("screen-1")
	require.NoError(t, err)
	require.Equal(t, "Bedroom", updated.Name)
	require.NotNil(t, updated.Overrides.Automation.SkipAds)
	require.True(t, *updated.Overrides.Automation.SkipAds)

	list, err := s.ListDevices()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteDevice("screen-1"))
	require.ErrorIs(t, s.DeleteDevice("screen-1"), models.ErrNotFound)
}
