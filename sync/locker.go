// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"github.com/nxgtw/go-rtbus/internal/die"
)

// Locker scope-locks a robust mutex, discarding the owner-died signal.
// Use it only where inconsistency of the guarded state after a holder
// crash is not a safety concern:
//	l := sync.NewLocker(m)
//	defer l.Release()
type Locker struct {
	m *Mutex
}

// NewLocker acquires the mutex, blocking until it is available.
func NewLocker(m *Mutex) *Locker {
	m.Lock()
	return &Locker{m: m}
}

// Release unlocks the mutex. Releasing twice is a fatal programming error.
func (l *Locker) Release() {
	l.m.Unlock()
}

// DeathAwareLocker scope-locks a robust mutex and retains the owner-died
// signal. The caller is forced to acknowledge a potentially inconsistent
// shared state: releasing the guard without ever calling OwnerDied is a
// fatal programming error.
type DeathAwareLocker struct {
	m         *Mutex
	ownerDied bool
	checked   bool
}

// NewDeathAwareLocker acquires the mutex, blocking until it is available.
func NewDeathAwareLocker(m *Mutex) *DeathAwareLocker {
	return &DeathAwareLocker{m: m, ownerDied: m.Lock()}
}

// OwnerDied returns true, if the previous owner of the mutex died while
// holding it.
func (l *DeathAwareLocker) OwnerDied() bool {
	l.checked = true
	return l.ownerDied
}

// Release unlocks the mutex.
func (l *DeathAwareLocker) Release() {
	if !l.checked {
		die.Die("nobody checked if the previous owner of mutex %s died", l.m.name)
	}
	l.m.Unlock()
}

// RecursiveLocker scope-locks a recursive robust mutex. Guards may be
// nested within the same thread; the underlying lock is released when the
// outermost guard is released. The owner-died signal is carried by the
// outermost guard only, and only that guard requires the caller to check it.
type RecursiveLocker struct {
	m         *RecursiveMutex
	ownerDied bool
	checked   bool
}

// NewRecursiveLocker acquires the mutex, blocking until it is available.
func NewRecursiveLocker(m *RecursiveMutex) *RecursiveLocker {
	nested := m.heldByCaller()
	l := &RecursiveLocker{m: m, ownerDied: m.Lock()}
	// an inner guard cannot observe owner death, there is nothing to check.
	l.checked = nested
	return l
}

// OwnerDied returns true, if the previous owner of the mutex died while
// holding it. Inner guards always return false.
func (l *RecursiveLocker) OwnerDied() bool {
	l.checked = true
	return l.ownerDied
}

// Release unlocks one level of the mutex.
func (l *RecursiveLocker) Release() {
	if !l.checked {
		die.Die("nobody checked if the previous owner of mutex %s died", l.m.m.name)
	}
	l.m.Unlock()
}
