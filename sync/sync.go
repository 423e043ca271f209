// Copyright 2017 Aleksandr Demakin. All rights reserved.

// Package sync provides robust mutual exclusion primitives for processes
// sharing memory. A robust mutex does not deadlock its survivors when the
// holder dies: the next acquirer is handed the lock together with an
// owner-died signal it can act upon.
package sync

// this is to ensure, that all lock implementations
// satisfy the same minimal robust interface.
var (
	_ RobustLocker = (*Mutex)(nil)
	_ RobustLocker = (*RecursiveMutex)(nil)
)

// RobustLocker is the minimal interface of a lock, which survives the
// unexpected death of its holder.
type RobustLocker interface {
	// Lock suspends the calling goroutine until the lock is acquired.
	// It returns true, if the previous owner died while holding the lock.
	Lock() bool
	// TryLock makes a single non-blocking attempt to acquire the lock.
	TryLock() LockState
	// Unlock releases the lock. Unlocking a lock not held by the caller
	// is a fatal programming error.
	Unlock()
}

// LockState is the result of a TryLock call.
type LockState int

const (
	// Locked means the caller now holds the lock.
	Locked LockState = iota
	// LockFailed means another live owner holds the lock.
	LockFailed
	// OwnerDied means the caller now holds the lock, and the previous owner
	// terminated while holding it. This is a signal, not an error: state
	// guarded by the lock may be inconsistent and must be checked.
	OwnerDied
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case LockFailed:
		return "lock failed"
	case OwnerDied:
		return "owner died"
	default:
		return "unknown"
	}
}
