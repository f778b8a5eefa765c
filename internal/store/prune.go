package store

import (
	"log/slog"
	"time"
)

// PruneKeys removes entries under prefix that were last written more than ttl
// ago, then trims the remainder to the keep most recent ones. A zero ttl or
// keep disables that rule. It returns the number of removed entries.
func (s *Store) PruneKeys(prefix string, ttl time.Duration, keep int) (int64, error) {
	pattern := likePrefix(prefix)
	var removed int64

	if ttl > 0 {
		cutoff := s.now().Add(-ttl).UnixNano()
		res, err := s.db.Exec(
			`DELETE FROM client_state WHERE key LIKE ? ESCAPE '\' AND updated_at < ?`,
			pattern, cutoff,
		)
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if keep > 0 {
		res, err := s.db.Exec(
			`DELETE FROM client_state WHERE key LIKE ? ESCAPE '\' AND key NOT IN (
				SELECT key FROM client_state WHERE key LIKE ? ESCAPE '\'
				ORDER BY updated_at DESC, key LIMIT ?
			)`,
			pattern, pattern, keep,
		)
		if err != nil {
			return removed, err
		}
		n, _ := res.RowsAffected()
		removed += n
	}

	if removed > 0 {
		slog.Info("pruned client state", "prefix", prefix, "removed", removed)
	}
	return removed, nil
}
