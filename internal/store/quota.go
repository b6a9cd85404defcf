package store

import (
	"fmt"

	perrors "github.com/p-blackswan/synapse/internal/errors"
)

// SetQuota caps the total key+value bytes held in local_storage, the way a
// browser caps localStorage. Zero or less removes the cap.
func (s *Store) SetQuota(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota = bytes
}

// UsageBytes returns the key+value bytes currently stored.
func (s *Store) UsageBytes() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, perrors.ErrStorageUnavailable
	}
	return s.usageExcluding("")
}

// checkQuota fails with ErrQuotaExceeded if writing value under key would
// push usage past the quota. Callers must hold s.mu.
func (s *Store) checkQuota(key, value string) error {
	if s.quota <= 0 {
		return nil
	}
	used, err := s.usageExcluding(key)
	if err != nil {
		return err
	}
	if used+len(key)+len(value) > s.quota {
		return fmt.Errorf("writing %q: %w", key, perrors.ErrQuotaExceeded)
	}
	return nil
}

func (s *Store) usageExcluding(key string) (int, error) {
	var used int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(length(CAST(key AS BLOB)) + length(CAST(value AS BLOB))), 0) FROM local_storage WHERE key <> ?`,
		key,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("failed to measure storage usage: %w", err)
	}
	return used, nil
}
