package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/snappy"
)

// GetCacheEntry returns the stored value for key. The second result is false
// when no entry exists.
func (s *Store) GetCacheEntry(key string) (string, bool, error) {
	var compressed []byte
	err := s.db.QueryRow(`SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&compressed)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading cache entry: %w", err)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return "", false, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	return string(raw), true, nil
}

// PutCacheEntry stores value under key. Entries are immutable: writing a key
// that already exists keeps the first value.
func (s *Store) PutCacheEntry(key, value string) error {
	compressed := snappy.Encode(nil, []byte(value))
	err := retryOnBusy(func() error {
		_, e := s.db.Exec(
			`INSERT INTO cache_entries (key, value, created_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO NOTHING`,
			key, compressed, time.Now().UTC(),
		)
		return e
	})
	if err != nil {
		return fmt.Errorf("inserting cache entry: %w", err)
	}
	return nil
}

// DeleteCacheEntries removes every entry whose key starts with prefix and
// returns how many were removed.
func (s *Store) DeleteCacheEntries(prefix string) (int64, error) {
	var result sql.Result
	err := retryOnBusy(func() error {
		var e error
		result, e = s.db.Exec(`DELETE FROM cache_entries WHERE substr(key, 1, ?) = ?`, len(prefix), prefix)
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("deleting cache entries: %w", err)
	}
	return result.RowsAffected()
}
