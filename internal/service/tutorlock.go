package service

import "sync"

// TutorLocks serializes mutations per tutor calendar. Operations on different
// tutors never contend; operations on the same tutor hold the lock across the
// whole check-then-act sequence so two concurrent bookers cannot both observe
// an available slot.
type TutorLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTutorLocks constructs the lock registry.
func NewTutorLocks() *TutorLocks {
	return &TutorLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the calendar lock for the tutor.
func (t *TutorLocks) Lock(tutorID string) {
	t.get(tutorID).Lock()
}

// Unlock releases the calendar lock for the tutor.
func (t *TutorLocks) Unlock(tutorID string) {
	t.get(tutorID).Unlock()
}

func (t *TutorLocks) get(tutorID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	lock, ok := t.locks[tutorID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[tutorID] = lock
	}
	return lock
}
