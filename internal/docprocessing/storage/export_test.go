package storage

import "time"

// NewTempStorageWithClock creates a storage without a cleanup loop whose
// expiry is judged against now.
func NewTempStorageWithClock(ttl time.Duration, now func() time.Time) *TempStorage {
	return newTempStorage(ttl, now)
}

// Cleanup runs one cleanup pass.
func (s *TempStorage) Cleanup() {
	s.cleanup()
}
