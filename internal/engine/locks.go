package engine

import (
	"sync"

	"github.com/google/uuid"
)

// Locks is a keyed mutex over patient ids: at most one in-flight evaluation
// per patient, while distinct patients proceed in parallel. Entries are
// reference counted and dropped on last unlock so the map does not grow with
// the patient population.
type Locks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{entries: map[uuid.UUID]*lockEntry{}}
}

func (l *Locks) Lock(id uuid.UUID) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

func (l *Locks) Unlock(id uuid.UUID) {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		l.mu.Unlock()
		panic("engine: unlock of unheld patient lock")
	}
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
	l.mu.Unlock()

	e.mu.Unlock()
}
