package server

import "sync"

// serverLocks serialises operations per server id. Different ids never contend.
type serverLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newServerLocks() *serverLocks {
	return &serverLocks{locks: make(map[string]*lockEntry)}
}

// lock blocks until id is free and returns the matching unlock.
func (l *serverLocks) lock(id string) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

// held reports whether any operation holds or waits on id.
func (l *serverLocks) held(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.locks[id]
	return ok
}
