package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"skipfleet/internal/models"
)

const deviceColumns = `screen_id, name, offset_ms, overrides, created_at, updated_at`

func scanDevice(scanner interface{ Scan(...any) error }) (models.DeviceSnapshot, error) {
	var d models.DeviceSnapshot
	var overridesJSON string
	err := scanner.Scan(&d.ScreenID, &d.Name, &d.OffsetMs, &overridesJSON, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal([]byte(overridesJSON), &d.Overrides); err != nil {
		return d, fmt.Errorf("decoding overrides for %s: %w", d.ScreenID, err)
	}
	return d, nil
}

// CreateDevice inserts a new device row. ScreenID must be unique.
func (s *Store) CreateDevice(d models.DeviceSnapshot) error {
	overridesJSON, err := json.Marshal(d.Overrides)
	if err != nil {
		return fmt.Errorf("encoding overrides: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO devices (screen_id, name, offset_ms, overrides) VALUES (?, ?, ?, ?)`,
		d.ScreenID, d.Name, d.OffsetMs, string(overridesJSON),
	)
	if err != nil {
		return fmt.Errorf("creating device %s: %w", d.ScreenID, err)
	}
	return nil
}

// GetDevice returns one device by screen_id.
func (s *Store) GetDevice(screenID string) (models.DeviceSnapshot, error) {
	d, err := scanDevice(s.db.QueryRow(
		`SELECT `+deviceColumns+` FROM devices WHERE screen_id = ?`, screenID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return models.DeviceSnapshot{}, fmt.Errorf("device %s: %w", screenID, models.ErrNotFound)
	}
	if err != nil {
		return models.DeviceSnapshot{}, fmt.Errorf("getting device %s: %w", screenID, err)
	}
	return d, nil
}

// ListDevices returns every configured device, ordered by screen_id.
func (s *Store) ListDevices() ([]models.DeviceSnapshot, error) {
	rows, err := s.db.Query(`SELECT ` + deviceColumns + ` FROM devices ORDER BY screen_id`)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	devices := []models.DeviceSnapshot{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// UpdateDevice replaces name, offset and overrides for an existing device.
func (s *Store) UpdateDevice(d models.DeviceSnapshot) error {
	overridesJSON, err := json.Marshal(d.Overrides)
	if err != nil {
		return fmt.Errorf("encoding overrides: %w", err)
	}
	updated, err := scanDevice(s.db.QueryRow(
		`UPDATE devices SET name = ?, offset_ms = ?, overrides = ?, updated_at = CURRENT_TIMESTAMP
		WHERE screen_id = ? RETURNING `+deviceColumns,
		d.Name, d.OffsetMs, string(overridesJSON), d.ScreenID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("device %s: %w", d.ScreenID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("updating device %s: %w", d.ScreenID, err)
	}
	_ = updated
	return nil
}

// DeleteDevice removes a device row. Its stats rows are left in place, same
// as the config store's general policy of never retroactively erasing history.
func (s *Store) DeleteDevice(screenID string) error {
	result, err := s.db.Exec(`DELETE FROM devices WHERE screen_id = ?`, screenID)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", screenID, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("device %s: %w", screenID, models.ErrNotFound)
	}
	return nil
}
