package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docverify/docverify-backend/internal/docprocessing/domain"
)

// TempStorage provides in-memory storage for extraction jobs.
// Jobs are automatically cleaned up after a TTL.
type TempStorage struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ExtractionJob
	ttl  time.Duration
	now  func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTempStorage creates a new in-memory temp storage with the given TTL.
// A non-positive TTL keeps jobs until they are deleted.
func NewTempStorage(ttl time.Duration) *TempStorage {
	s := newTempStorage(ttl, time.Now)
	if ttl > 0 {
		go s.cleanupLoop()
	}
	return s
}

func newTempStorage(ttl time.Duration, now func() time.Time) *TempStorage {
	return &TempStorage{
		jobs: make(map[string]*domain.ExtractionJob),
		ttl:  ttl,
		now:  now,
		stop: make(chan struct{}),
	}
}

// GenerateJobID creates a random (v4) job ID
func GenerateJobID() string {
	return uuid.New().String()
}

// StoreJob stores an extraction job
func (s *TempStorage) StoreJob(job *domain.ExtractionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
}

// GetJob returns a snapshot of the job, or nil when it is unknown or expired
func (s *TempStorage) GetJob(jobID string) *domain.ExtractionJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok || s.expired(job) {
		return nil
	}
	snapshot := *job
	return &snapshot
}

// UpdateJob updates an existing extraction job
func (s *TempStorage) UpdateJob(jobID string, update func(*domain.ExtractionJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		update(job)
	}
}

// DeleteJob removes a job from storage
func (s *TempStorage) DeleteJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Len returns the number of stored jobs, expired ones included until cleanup
func (s *TempStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close stops the cleanup loop
func (s *TempStorage) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// ZeroBytes overwrites a byte slice with zeros.
// Uploaded document images must not linger in memory.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// cleanupLoop periodically removes expired jobs
func (s *TempStorage) cleanupLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

func (s *TempStorage) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, job := range s.jobs {
		if s.expired(job) {
			delete(s.jobs, id)
		}
	}
}

func (s *TempStorage) expired(job *domain.ExtractionJob) bool {
	if s.ttl <= 0 {
		return false
	}
	return job.CreatedAt.Before(s.now().Add(-s.ttl))
}
