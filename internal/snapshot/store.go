package snapshot

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrEmptySnapshot = errors.New("snapshot has no records")
	ErrStaleSnapshot = errors.New("snapshot is not newer than the current snapshot")
)

// Store holds the committed snapshot. Reads never block, commits are serialized and
// replace the visible snapshot with a single pointer swap.
type Store struct {
	current atomic.Pointer[Snapshot]
	// commitLock orders commits so that capturedAt strictly increases.
	commitLock sync.Mutex
}

func NewStore() *Store {
	return &Store{}
}

// Current returns the last committed snapshot, ok is false when nothing has been committed yet.
func (s *Store) Current() (snap Snapshot, ok bool) {
	ptr := s.current.Load()
	if ptr == nil {
		return Snapshot{}, false
	}
	return *ptr, true
}

// Commit makes next the current snapshot.
func (s *Store) Commit(next Snapshot) error {
	if next.Len() == 0 {
		return ErrEmptySnapshot
	}

	s.commitLock.Lock()
	defer s.commitLock.Unlock()

	prev := s.current.Load()
	if prev != nil && !next.CapturedAt().After(prev.CapturedAt()) {
		return fmt.Errorf(
			"%w: %s <= %s",
			ErrStaleSnapshot,
			next.CapturedAt().Format(TimeFormat),
			prev.CapturedAt().Format(TimeFormat),
		)
	}

	s.current.Store(&next)
	return nil
}

// NextCaptureTime returns now, or 1ms after the current snapshot when the clock has not
// moved past it.
func (s *Store) NextCaptureTime(now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	prev := s.current.Load()
	if prev == nil || now.After(prev.CapturedAt()) {
		return now
	}
	return prev.CapturedAt().Add(time.Millisecond)
}
