package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"skipfleet/internal/models"
)

const encryptedPrefix = "enc:"

const (
	keyAPIKey            = "apikey"
	keySkipCountTracking = "skip_count_tracking"
	keyMuteAds           = "mute_ads"
	keySkipAds           = "skip_ads"
	keyMinimumSkipLength = "minimum_skip_length"
	keyAutoPlay          = "auto_play"
	keyJoinName          = "join_name"
	keyUseProxy          = "use_proxy"
)

const defaultMinimumSkipLength = 1

func (s *Store) getSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %q: %w", key, err)
	}
	return value, nil
}

const settingUpsert = `INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`

func (s *Store) setSetting(tx *sql.Tx, key, value string) error {
	if _, err := tx.Exec(settingUpsert, key, value); err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

// GetGlobalSettings loads the single global settings row, decrypting the API
// key when the store was constructed WithEncryptor. SkipCategories and
// ChannelWhitelist are left empty here; callers needing them fetch via
// ListSkipCategories / ListChannelWhitelist.
func (s *Store) GetGlobalSettings() (models.GlobalSettings, error) {
	var g models.GlobalSettings

	rawKey, err := s.getSetting(keyAPIKey)
	if err != nil {
		return g, err
	}
	if strings.HasPrefix(rawKey, encryptedPrefix) {
		if s.encryptor == nil {
			return g, fmt.Errorf("api key is encrypted but no encryption key configured")
		}
		g.APIKey, err = s.encryptor.Decrypt(strings.TrimPrefix(rawKey, encryptedPrefix))
		if err != nil {
			return g, fmt.Errorf("decrypting api key: %w", err)
		}
	} else {
		g.APIKey = rawKey
	}

	if g.SkipCountTracking, err = s.getBoolSetting(keySkipCountTracking, true); err != nil {
		return g, err
	}
	if g.MuteAds, err = s.getBoolSetting(keyMuteAds, false); err != nil {
		return g, err
	}
	if g.SkipAds, err = s.getBoolSetting(keySkipAds, false); err != nil {
		return g, err
	}
	if g.AutoPlay, err = s.getBoolSetting(keyAutoPlay, true); err != nil {
		return g, err
	}
	if g.UseProxy, err = s.getBoolSetting(keyUseProxy, false); err != nil {
		return g, err
	}

	raw, err := s.getSetting(keyMinimumSkipLength)
	if err != nil {
		return g, err
	}
	g.MinimumSkipLength = defaultMinimumSkipLength
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			g.MinimumSkipLength = n
		}
	}

	if g.JoinName, err = s.getSetting(keyJoinName); err != nil {
		return g, err
	}

	return g, nil
}

func (s *Store) getBoolSetting(key string, def bool) (bool, error) {
	raw, err := s.getSetting(key)
	if err != nil {
		return false, err
	}
	if raw == "" {
		return def, nil
	}
	return raw == "1", nil
}

// SetGlobalSettings persists the settings-row fields of g in one
// transaction. An empty APIKey leaves the previously stored key untouched
// rather than zeroing out a secret implicitly. SkipCategories and
// ChannelWhitelist are not written here; use SetSkipCategories /
// SetChannelWhitelist.
func (s *Store) SetGlobalSettings(g models.GlobalSettings) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if g.APIKey != "" {
		val := g.APIKey
		if s.encryptor != nil {
			encrypted, err := s.encryptor.Encrypt(g.APIKey)
			if err != nil {
				return fmt.Errorf("encrypting api key: %w", err)
			}
			val = encryptedPrefix + encrypted
		}
		if err := s.setSetting(tx, keyAPIKey, val); err != nil {
			return err
		}
	}

	boolSettings := []struct {
		key string
		val bool
	}{
		{keySkipCountTracking, g.SkipCountTracking},
		{keyMuteAds, g.MuteAds},
		{keySkipAds, g.SkipAds},
		{keyAutoPlay, g.AutoPlay},
		{keyUseProxy, g.UseProxy},
	}
	for _, kv := range boolSettings {
		val := "0"
		if kv.val {
			val = "1"
		}
		if err := s.setSetting(tx, kv.key, val); err != nil {
			return err
		}
	}

	if err := s.setSetting(tx, keyMinimumSkipLength, strconv.Itoa(g.MinimumSkipLength)); err != nil {
		return err
	}
	if err := s.setSetting(tx, keyJoinName, g.JoinName); err != nil {
		return err
	}

	return tx.Commit()
}
