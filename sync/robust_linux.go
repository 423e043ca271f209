// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/nxgtw/go-rtbus/internal/allocator"
	"github.com/nxgtw/go-rtbus/internal/common"
	"github.com/nxgtw/go-rtbus/internal/die"

	"golang.org/x/sys/unix"
)

// The lock word holds the OS thread id of the current owner in its lower
// 31 bits, plus a waiters flag. The kernel robust-futex list cannot be
// registered from Go, so holder death is detected by contenders instead:
// a contender probes the owner task via procfs, and steals the word of a
// dead owner with a single CAS. The CAS makes the owner-died signal
// exactly-once: one contender wins the word, everybody else retries and
// finds a live owner.
const (
	robustStateSize = 8 // lock word + recursion depth

	flagWaiters = uint32(1) << 31
	tidMask     = ^flagWaiters

	lockSpinCount = 100
	// a blocked Lock wakes up this often to re-probe the owner's liveness.
	probePeriod = 10 * time.Millisecond
)

type robustState struct {
	word  *uint32
	depth *uint32
}

func newRobustState(ptr unsafe.Pointer) robustState {
	return robustState{
		word:  (*uint32)(ptr),
		depth: (*uint32)(allocator.AdvancePointer(ptr, 4)),
	}
}

func (s robustState) init() {
	atomic.StoreUint32(s.word, 0)
	atomic.StoreUint32(s.depth, 0)
}

// tryAcquire makes a single pass over the lock word on behalf of tid.
// It returns Locked or OwnerDied, if the word now holds tid,
// and LockFailed, if the lock is held by a live owner, including tid itself.
func (s robustState) tryAcquire(tid uint32) LockState {
	for {
		old := atomic.LoadUint32(s.word)
		owner := old & tidMask
		if owner == 0 {
			if atomic.CompareAndSwapUint32(s.word, old, old&flagWaiters|tid) {
				return Locked
			}
			continue
		}
		if owner == tid || taskAlive(owner) {
			return LockFailed
		}
		// the owner died while holding the lock. the waiters flag is kept,
		// so that the eventual unlock still wakes the queue.
		if atomic.CompareAndSwapUint32(s.word, old, old&flagWaiters|tid) {
			return OwnerDied
		}
	}
}

// acquire blocks until the lock word holds tid. It returns true, if the
// previous owner died while holding the lock. Blocking on a lock already
// held by tid would deadlock the thread, which is a programming error.
func (s robustState) acquire(tid uint32, name string) bool {
	if atomic.LoadUint32(s.word)&tidMask == tid {
		die.Die("multiple lock of mutex %s", name)
	}
	for i := 0; i < lockSpinCount; i++ {
		if st := s.tryAcquire(tid); st != LockFailed {
			return st == OwnerDied
		}
		runtime.Gosched()
	}
	for {
		if st := s.tryAcquire(tid); st != LockFailed {
			return st == OwnerDied
		}
		old := atomic.LoadUint32(s.word)
		if old&tidMask == 0 {
			continue
		}
		if old&flagWaiters == 0 && !atomic.CompareAndSwapUint32(s.word, old, old|flagWaiters) {
			continue
		}
		err := FutexWait(unsafe.Pointer(s.word), old|flagWaiters, probePeriod, 0)
		if err != nil && !common.SyscallErrHasCode(err, unix.EWOULDBLOCK) && !common.IsTimeoutErr(err) {
			panic(err)
		}
	}
}

// release hands the lock word back. Releasing a word not held by tid is
// a fatal programming error.
func (s robustState) release(tid uint32, name string) {
	if atomic.LoadUint32(s.word)&tidMask != tid {
		die.Die("multiple unlock of mutex %s", name)
	}
	if atomic.SwapUint32(s.word, 0)&flagWaiters != 0 {
		if _, err := FutexWake(unsafe.Pointer(s.word), 1, 0); err != nil {
			panic(err)
		}
	}
}

// lockedByLiveTask returns true, if the word is held by a task which
// still exists.
func (s robustState) lockedByLiveTask() bool {
	owner := atomic.LoadUint32(s.word) & tidMask
	return owner != 0 && taskAlive(owner)
}

// taskAlive reports whether the task with the given id still exists.
// Thread ids are resolvable via direct procfs lookup even for threads of
// other processes in the same pid namespace. A holder wedged on its
// process's main thread is indistinguishable from a live one: the runtime
// parks the main thread instead of exiting it, so its procfs entry stays.
func taskAlive(tid uint32) bool {
	var stat unix.Stat_t
	return unix.Stat("/proc/"+strconv.FormatUint(uint64(tid), 10), &stat) == nil
}
