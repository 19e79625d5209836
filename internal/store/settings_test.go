package store

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"skipfleet/internal/crypto"
	"skipfleet/internal/models"
)

func TestGlobalSettingsDefaults(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	g, err := s.GetGlobalSettings()
	require.NoError(t, err)
	require.True(t, g.SkipCountTracking)
	require.False(t, g.SkipAds)
	require.True(t, g.AutoPlay)
	require.False(t, g.MuteAds)
	require.False(t, g.UseProxy)
	require.Equal(t, defaultMinimumSkipLength, g.MinimumSkipLength)
}

func TestGlobalSettingsRoundTrip(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	g := models.GlobalSettings{
		APIKey:            "plaintext-key",
		SkipCountTracking: false,
		MuteAds:           true,
		SkipAds:           false,
		MinimumSkipLength: 3,
		AutoPlay:          false,
		JoinName:          "living-room",
		UseProxy:          true,
	}
	require.NoError(t, s.SetGlobalSettings(g))

	got, err := s.GetGlobalSettings()
	require.NoError(t, err)
	require.Equal(t, g, got)
}

func TestGlobalSettingsEncryptedAPIKey(t *testing.T) {
	enc, err := crypto.NewEncryptor(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	dbStore, err := New(":memory:", WithEncryptor(enc))
	require.NoError(t, err)
	t.Cleanup(func() { dbStore.Close() })
	require.NoError(t, dbStore.Migrate(migrationsDir()))

	require.NoError(t, dbStore.SetGlobalSettings(models.GlobalSettings{APIKey: "super-secret"}))

	var raw string
	require.NoError(t, dbStore.db.QueryRow(`SELECT value FROM settings WHERE key = 'apikey'`).Scan(&raw))
	require.Contains(t, raw, "enc:")
	require.NotContains(t, raw, "super-secret")

	got, err := dbStore.GetGlobalSettings()
	require.NoError(t, err)
	require.Equal(t, "super-secret", got.APIKey)
}

func TestGlobalSettingsUpdatePreservesAPIKeyWhenEmpty(t *testing.T) {
	s := newTestStoreWithMigrations(t)

	require.NoError(t, s.SetGlobalSettings(models.GlobalSettings{APIKey: "first-key"}))
	require.NoError(t, s.SetGlobalSettings(models.GlobalSettings{JoinName: "new-name"}))

	got, err := s.GetGlobalSettings()
	require.NoError(t, err)
	require.Equal(t, "first-key", got.APIKey)
	require.Equal(t, "new-name", got.JoinName)
}
