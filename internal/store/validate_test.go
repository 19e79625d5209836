package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"skipfleet/internal/models"
)

func TestValidateRequiresAtLeastOneDevice(t *testing.T) {
	s := newTestStoreWithMigrations(t)
	require.Error(t, s.Validate())

	require.NoError(t, s.CreateDevice(models.DeviceSnapshot{ScreenID: "screen-1", Name: "Den"}))
	require.NoError(t, s.Validate())
}

func TestValidateRequiresAPIKeyForWhitelist(t *testing.T) {
	s := newTestStoreWithMigrations(t)
	require.NoError(t, s.CreateDevice(models.DeviceSnapshot{ScreenID: "screen-1", Name: "Den"}))
	require.NoError(t, s.Validate())

	require.NoError(t, s.SetChannelWhitelist([]models.ChannelEntry{{ChannelID: "UC1", DisplayName: "One"}}))
	require.Error(t, s.Validate())

	require.NoError(t, s.SetGlobalSettings(models.GlobalSettings{APIKey: "key"}))
	require.NoError(t, s.Validate())
}
