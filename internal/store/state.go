package store

import (
	"database/sql"
	"strings"
)

// Well-known client state keys.
const (
	KeyToken                 = "token"
	KeyUserID                = "user_id"
	KeyVersion               = "version"
	KeyLastSeenUpdate        = "lastSeenUpdate"
	KeyLastSeenLeaderboardID = "lastSeenLeaderboardId"
	KeyHasVisitedBefore      = "hasVisitedBefore"
)

// SetState upserts a key-value pair and stamps it with the current time.
func (s *Store) SetState(key, value string) error {
	now := s.now().UnixNano()
	_, err := s.db.Exec(
		`INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?`,
		key, value, now, value, now,
	)
	return err
}

// GetState returns the value for a key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// DeleteState removes a key. Deleting a missing key is not an error.
func (s *Store) DeleteState(key string) error {
	_, err := s.db.Exec(`DELETE FROM client_state WHERE key = ?`, key)
	return err
}

// ListStateKeys returns keys starting with prefix, most recently written first.
func (s *Store) ListStateKeys(prefix string) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT key FROM client_state WHERE key LIKE ? ESCAPE '\' ORDER BY updated_at DESC, key`,
		likePrefix(prefix),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}
