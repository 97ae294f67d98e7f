package storage

import (
	"os"
	"sync"
)

// LockMode selects a shared (reader) or exclusive (writer) OS-level lock.
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// fileLock wraps flock(2)/LockFileEx with a mutex guarding the file
// handle's lifetime, so a concurrent Close cannot race the syscall using
// the same fd. This is defense in depth on top of the in-process RWMutex
// each Collection already holds (spec.md §5): it stops two separate
// *processes* from opening the same collection directory for writing.
type fileLock struct {
	mu sync.Mutex
	f  *os.File
}

func (l *fileLock) Lock(mode LockMode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.lock(mode)
}

func (l *fileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	return l.unlock()
}

func (l *fileLock) setFile(f *os.File) {
	l.mu.Lock()
	l.f = f
	l.mu.Unlock()
}
