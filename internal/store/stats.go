package store

import (
	"database/sql"
	"fmt"
	"time"
)

// globalDeviceID is the synthetic device_id every metric is mirrored under,
// giving a fleet-wide total alongside each device's own counters.
const globalDeviceID = "__global__"

const statUpsert = `INSERT INTO stats (device_id, metric, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(device_id, metric) DO UPDATE SET value = value + excluded.value, updated_at = CURRENT_TIMESTAMP`

const statSet = `INSERT INTO stats (device_id, metric, value, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(device_id, metric) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

// IncrementStat adds delta to metric for deviceID, and mirrors the same
// delta onto the fleet-wide "__global__" row, in one transaction.
func (s *Store) IncrementStat(deviceID, metric string, delta float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := s.incrementInternal(tx, deviceID, metric, delta); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) incrementInternal(tx *sql.Tx, deviceID, metric string, delta float64) error {
	if _, err := tx.Exec(statUpsert, deviceID, metric, delta); err != nil {
		return fmt.Errorf("incrementing %s for %s: %w", metric, deviceID, err)
	}
	if deviceID != globalDeviceID {
		if _, err := tx.Exec(statUpsert, globalDeviceID, metric, delta); err != nil {
			return fmt.Errorf("incrementing %s for global: %w", metric, err)
		}
	}
	return nil
}

// SetStat sets metric to value for deviceID and mirrors the same value onto
// the "__global__" row, in one transaction. Used for non-additive metrics
// like last_seen.
func (s *Store) SetStat(deviceID, metric string, value float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(statSet, deviceID, metric, value); err != nil {
		return fmt.Errorf("setting %s for %s: %w", metric, deviceID, err)
	}
	if deviceID != globalDeviceID {
		if _, err := tx.Exec(statSet, globalDeviceID, metric, value); err != nil {
			return fmt.Errorf("setting %s for global: %w", metric, err)
		}
	}

	return tx.Commit()
}

// RecordVideoStarted bumps videos_watched by 1 for a device.
func (s *Store) RecordVideoStarted(deviceID string) error {
	return s.IncrementStat(deviceID, "videos_watched", 1)
}

// RecordWatchTime adds seconds of watch time for a device.
func (s *Store) RecordWatchTime(deviceID string, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	return s.IncrementStat(deviceID, "watch_time_seconds", seconds)
}

// RecordSegmentSkip bumps segments_skipped by uuidCount and time_saved_seconds
// by savedSeconds, plus a per-category skip_category_<cat> counter and a
// time_saved_category_<cat> counter apportioning savedSeconds evenly across
// categories.
func (s *Store) RecordSegmentSkip(deviceID string, uuidCount int, categories []string, savedSeconds float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.incrementInternal(tx, deviceID, "segments_skipped", float64(uuidCount)); err != nil {
		return err
	}
	if err := s.incrementInternal(tx, deviceID, "time_saved_seconds", savedSeconds); err != nil {
		return err
	}

	n := len(categories)
	if n == 0 {
		n = 1
	}
	perCategory := savedSeconds / float64(n)
	for _, cat := range categories {
		if err := s.incrementInternal(tx, deviceID, "skip_category_"+cat, 1); err != nil {
			return err
		}
		if err := s.incrementInternal(tx, deviceID, "time_saved_category_"+cat, perCategory); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// MarkDeviceSeen records the current time as the device's last_seen metric.
func (s *Store) MarkDeviceSeen(deviceID string, at time.Time) error {
	return s.SetStat(deviceID, "last_seen", float64(at.Unix()))
}

// LoadDeviceStats returns every metric recorded for one device.
func (s *Store) LoadDeviceStats(deviceID string) (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT metric, value FROM stats WHERE device_id = ?`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading stats for %s: %w", deviceID, err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var metric string
		var value float64
		if err := rows.Scan(&metric, &value); err != nil {
			return nil, err
		}
		out[metric] = value
	}
	return out, rows.Err()
}

// LoadAllStats returns every metric for every device_id, including the
// synthetic "__global__" row, keyed by device_id.
func (s *Store) LoadAllStats() (map[string]map[string]float64, error) {
	rows, err := s.db.Query(`SELECT device_id, metric, value FROM stats`)
	if err != nil {
		return nil, fmt.Errorf("loading all stats: %w", err)
	}
	defer rows.Close()

	out := map[string]map[string]float64{}
	for rows.Next() {
		var deviceID, metric string
		var value float64
		if err := rows.Scan(&deviceID, &metric, &value); err != nil {
			return nil, err
		}
		if out[deviceID] == nil {
			out[deviceID] = map[string]float64{}
		}
		out[deviceID][metric] = value
	}
	return out, rows.Err()
}
