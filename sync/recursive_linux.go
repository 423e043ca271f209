// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"os"
	"runtime"
	"sync/atomic"

	"github.com/nxgtw/go-rtbus/internal/die"
)

// RecursiveMutex is a robust lock, which may be re-acquired by its current
// holder. Each acquisition increments a depth counter, each Unlock
// decrements it, and the lock becomes available to other owners only when
// the depth reaches zero. While the depth is above zero, the holding
// thread is the sole permitted re-acquirer.
type RecursiveMutex struct {
	m *Mutex
}

// NewRecursiveMutex creates or opens a robust recursive mutex backed by a
// shared memory object. The arguments are those of NewMutex.
func NewRecursiveMutex(name string, flag int, perm os.FileMode) (*RecursiveMutex, error) {
	m, err := NewMutex(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &RecursiveMutex{m: m}, nil
}

// NewPrivateRecursiveMutex creates a recursive mutex usable within the
// current process only.
func NewPrivateRecursiveMutex() *RecursiveMutex {
	return &RecursiveMutex{m: NewPrivateMutex()}
}

// Lock acquires the mutex, re-entering if the calling thread already holds
// it. It returns true, if the previous owner died while holding the lock;
// the signal can only come from the outermost acquisition.
func (m *RecursiveMutex) Lock() bool {
	runtime.LockOSThread()
	tid := gettid()
	s := m.m.state
	if atomic.LoadUint32(s.word)&tidMask == tid {
		atomic.AddUint32(s.depth, 1)
		return false
	}
	died := s.acquire(tid, m.m.name)
	atomic.StoreUint32(s.depth, 1)
	return died
}

// TryLock makes a single non-blocking attempt to acquire the mutex.
// For the current holder it always succeeds, incrementing the depth.
func (m *RecursiveMutex) TryLock() LockState {
	runtime.LockOSThread()
	tid := gettid()
	s := m.m.state
	if atomic.LoadUint32(s.word)&tidMask == tid {
		atomic.AddUint32(s.depth, 1)
		return Locked
	}
	st := s.tryAcquire(tid)
	if st == LockFailed {
		runtime.UnlockOSThread()
		return st
	}
	atomic.StoreUint32(s.depth, 1)
	return st
}

// Unlock decrements the depth, releasing the mutex when it reaches zero.
// Unlocking a mutex not held by the calling thread is a fatal programming
// error.
func (m *RecursiveMutex) Unlock() {
	tid := gettid()
	s := m.m.state
	if atomic.LoadUint32(s.word)&tidMask != tid {
		die.Die("multiple unlock of mutex %s", m.m.name)
	}
	if atomic.AddUint32(s.depth, ^uint32(0)) == 0 {
		s.release(tid, m.m.name)
	}
	runtime.UnlockOSThread()
}

// Close unmaps the mutex memory. Closing a locked mutex is a fatal
// programming error.
func (m *RecursiveMutex) Close() error {
	return m.m.Close()
}

// Destroy closes the mutex and removes the underlying shared memory object.
func (m *RecursiveMutex) Destroy() error {
	return m.m.Destroy()
}

// heldByCaller returns true, if the calling thread is the current owner.
func (m *RecursiveMutex) heldByCaller() bool {
	return atomic.LoadUint32(m.m.state.word)&tidMask == gettid()
}
