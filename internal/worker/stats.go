package worker

import (
	"sync"
)

// Stats counts the deliveries this process made, for heartbeats.
type Stats struct {
	mu        sync.Mutex
	processed int64
	failed    int64
	lastError string
}

func (s *Stats) Success() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

func (s *Stats) Failure(msg string) {
	s.mu.Lock()
	s.failed++
	s.lastError = msg
	s.mu.Unlock()
}

// Snapshot returns the running totals. The last error is reported once.
func (s *Stats) Snapshot() (processed, failed int64, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lastError, s.lastError = s.lastError, ""
	return s.processed, s.failed, lastError
}
