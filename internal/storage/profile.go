package storage

import (
	"fmt"
	"time"
)

// LoadProfile returns every stored sender profile key.
func (s *Store) LoadProfile() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM user_profile`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// SaveProfile upserts values in one transaction. An empty value removes the
// key.
func (s *Store) SaveProfile(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(time.Now())
	for k, v := range values {
		if v == "" {
			_, err = tx.Exec(`DELETE FROM user_profile WHERE key = ?`, k)
		} else {
			_, err = tx.Exec(`
				INSERT INTO user_profile (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				k, v, now)
		}
		if err != nil {
			return fmt.Errorf("saving profile key %q: %w", k, err)
		}
	}
	return tx.Commit()
}
