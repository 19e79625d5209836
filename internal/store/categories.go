package store

import "fmt"

// defaultSkipCategories is used when the categories table is empty, matching
// helpers.py Config.validate()'s default of ["sponsor"].
var defaultSkipCategories = []string{"sponsor"}

// ListSkipCategories returns the configured skip categories, ordered
// alphabetically, or defaultSkipCategories if none are configured.
func (s *Store) ListSkipCategories() ([]string, error) {
	rows, err := s.db.Query(`SELECT category FROM skip_categories ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("listing skip categories: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return append([]string(nil), defaultSkipCategories...), nil
	}
	return categories, nil
}

// SetSkipCategories replaces the configured category list wholesale.
func (s *Store) SetSkipCategories(categories []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM skip_categories`); err != nil {
		return fmt.Errorf("clearing skip categories: %w", err)
	}
	for _, c := range categories {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO skip_categories (category) VALUES (?)`, c); err != nil {
			return fmt.Errorf("inserting category %s: %w", c, err)
		}
	}
	return tx.Commit()
}
