package store

import (
	"fmt"

	"skipfleet/internal/models"
)

// ListChannelWhitelist returns every whitelisted channel, ordered by channel_id.
func (s *Store) ListChannelWhitelist() ([]models.ChannelEntry, error) {
	rows, err := s.db.Query(`SELECT channel_id, display_name FROM channel_whitelist ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("listing channel whitelist: %w", err)
	}
	defer rows.Close()

	entries := []models.ChannelEntry{}
	for rows.Next() {
		var e models.ChannelEntry
		if err := rows.Scan(&e.ChannelID, &e.DisplayName); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SetChannelWhitelist replaces the whitelist wholesale, matching the
// original config tool's "one settings save, one derived table" model.
func (s *Store) SetChannelWhitelist(entries []models.ChannelEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM channel_whitelist`); err != nil {
		return fmt.Errorf("clearing channel whitelist: %w", err)
	}
	for _, e := range entries {
		if _, err := tx.Exec(
			`INSERT INTO channel_whitelist (channel_id, display_name) VALUES (?, ?)`,
			e.ChannelID, e.DisplayName,
		); err != nil {
			return fmt.Errorf("inserting channel %s: %w", e.ChannelID, err)
		}
	}
	return tx.Commit()
}
