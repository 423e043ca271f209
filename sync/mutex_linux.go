// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"os"
	"runtime"

	"github.com/nxgtw/go-rtbus/internal/allocator"
	"github.com/nxgtw/go-rtbus/internal/die"
	"github.com/nxgtw/go-rtbus/internal/shmem"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Mutex is a robust mutual exclusion lock. Its state lives in memory
// shared by multiple processes, and it survives the unexpected death of
// its holder: the next acquirer is handed the lock together with an
// owner-died signal.
// A holder's goroutine is pinned to its OS thread from a successful
// acquisition until the matching Unlock.
type Mutex struct {
	state  robustState
	region *shmem.Region
	buf    []byte
	name   string
}

// NewMutex creates or opens a robust mutex backed by a shared memory object.
//	name - object name.
//	flag - a combination of open flags from the 'os' package:
//		os.O_CREATE, os.O_EXCL, or 0 to open an existing mutex.
//	perm - object's permission bits.
func NewMutex(name string, flag int, perm os.FileMode) (*Mutex, error) {
	region, err := shmem.NewRegion(mutexSharedName(name), flag, perm, robustStateSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open shm region")
	}
	m := &Mutex{
		state:  newRobustState(allocator.ByteSliceData(region.Data())),
		region: region,
		name:   name,
	}
	if region.Created() {
		m.state.init()
	}
	return m, nil
}

// NewPrivateMutex creates a robust mutex usable within the current
// process only. It needs no shared memory object and no cleanup beyond
// garbage collection.
func NewPrivateMutex() *Mutex {
	buf := make([]byte, robustStateSize)
	m := &Mutex{
		state: newRobustState(allocator.ByteSliceData(buf)),
		buf:   buf,
		name:  "private",
	}
	m.state.init()
	return m
}

// Lock suspends the calling goroutine until the mutex is acquired.
// It returns true, if the previous owner of the mutex died while holding
// it. In that case the lock IS held by the caller, and the state guarded
// by the mutex may be inconsistent.
// Blocking on a mutex already held by the calling thread is a fatal
// programming error.
func (m *Mutex) Lock() bool {
	runtime.LockOSThread()
	return m.state.acquire(gettid(), m.name)
}

// TryLock makes a single non-blocking attempt to acquire the mutex.
// It returns Locked or OwnerDied, if the caller now holds the mutex,
// and LockFailed otherwise.
func (m *Mutex) TryLock() LockState {
	runtime.LockOSThread()
	st := m.state.tryAcquire(gettid())
	if st == LockFailed {
		runtime.UnlockOSThread()
	}
	return st
}

// Unlock releases the mutex. Unlocking a mutex not held by the calling
// thread is a fatal programming error.
func (m *Mutex) Unlock() {
	m.state.release(gettid(), m.name)
	runtime.UnlockOSThread()
}

// Close unmaps the mutex memory, leaving the underlying object in place.
// Closing a locked mutex is a fatal programming error.
func (m *Mutex) Close() error {
	if m.state.lockedByLiveTask() {
		die.Die("destroying locked mutex %s", m.name)
	}
	if m.region != nil {
		return m.region.Close()
	}
	return nil
}

// Destroy closes the mutex and removes the underlying shared memory object.
func (m *Mutex) Destroy() error {
	if err := m.Close(); err != nil {
		return errors.Wrap(err, "failed to close shm region")
	}
	if m.region == nil {
		return nil
	}
	name := m.name
	m.region = nil
	m.name = ""
	return shmem.Destroy(mutexSharedName(name))
}

// DestroyMutex removes a mutex object with the given name.
// It is not an error to destroy a mutex which does not exist.
func DestroyMutex(name string) error {
	return shmem.Destroy(mutexSharedName(name))
}

func gettid() uint32 {
	return uint32(unix.Gettid())
}

func mutexSharedName(name string) string {
	return "go-rtbus.mutex." + name
}
