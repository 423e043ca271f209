// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/nxgtw/go-rtbus/internal/die"

	"github.com/stretchr/testify/assert"
)

const testMutexName = "go-rtbus.test.mutex"

func TestMain(m *testing.M) {
	if name := os.Getenv(holderEnv); name != "" {
		runMutexHolder(name)
	}
	die.SetTestMode(true)
	// A goroutine exiting while thread-locked terminates its OS thread only
	// if that thread is not the process's main one: the runtime parks the
	// main thread instead of exiting it. Keeping the main goroutine pinned
	// here makes dying lock holders land on expendable threads.
	runtime.LockOSThread()
	os.Exit(m.Run())
}

// lockAndDie acquires the lock on another OS thread and lets that thread
// die while holding it. A goroutine which exits while locked to its OS
// thread terminates the thread, so the lock's owner is really gone.
func lockAndDie(l RobustLocker) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Lock()
	}()
	<-done
}

// tryLockDead polls TryLock until the dead owner's thread is reaped by the
// runtime and the steal succeeds.
func tryLockDead(l RobustLocker) LockState {
	for i := 0; i < 1000; i++ {
		if st := l.TryLock(); st != LockFailed {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	return LockFailed
}

func tryLockElsewhere(l RobustLocker) LockState {
	result := make(chan LockState)
	go func() {
		st := l.TryLock()
		if st != LockFailed {
			l.Unlock()
		}
		result <- st
	}()
	return <-result
}

func TestMutexTryLock(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	a.Equal(Locked, m.TryLock())
	a.Equal(LockFailed, m.TryLock())
	a.Equal(LockFailed, tryLockElsewhere(m))
	m.Unlock()
	a.Equal(Locked, m.TryLock())
	m.Unlock()
}

func TestMutexLock(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	a.False(m.Lock())
	a.Equal(LockFailed, tryLockElsewhere(m))
	m.Unlock()
	a.Equal(Locked, tryLockElsewhere(m))
}

func TestMutexLockContended(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	counter := 0
	const iterations = 300
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; i++ {
			m.Lock()
			counter++
			m.Unlock()
		}
	}()
	for i := 0; i < iterations; i++ {
		m.Lock()
		counter--
		m.Unlock()
	}
	<-done
	m.Lock()
	a.Equal(0, counter)
	m.Unlock()
}

func TestMutexRepeatUnlock(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	a.False(m.Lock())
	m.Unlock()
	a.PanicsWithValue("multiple unlock of mutex private", func() {
		m.Unlock()
	})
}

func TestMutexNeverLocked(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	a.PanicsWithValue("multiple unlock of mutex private", func() {
		m.Unlock()
	})
}

func TestMutexRepeatLock(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	a.False(m.Lock())
	a.PanicsWithValue("multiple lock of mutex private", func() {
		m.Lock()
	})
	m.Unlock()
}

func TestMutexDestroyLocked(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	a.False(m.Lock())
	a.PanicsWithValue("destroying locked mutex private", func() {
		m.Close()
	})
	m.Unlock()
	a.NoError(m.Close())
}

// The owner-died path depends on the holder's thread really terminating:
// its procfs entry must disappear, or the steal can never fire.
func TestDeadHolderThreadExits(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	lockAndDie(m)
	deadline := time.Now().Add(time.Second)
	for m.state.lockedByLiveTask() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	a.False(m.state.lockedByLiveTask())
	a.Equal(OwnerDied, m.TryLock())
	m.Unlock()
}

func TestMutexOwnerDiedLock(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	lockAndDie(m)
	a.True(m.Lock())
	m.Unlock()
	// the owner-died signal is delivered exactly once.
	a.Equal(Locked, m.TryLock())
	m.Unlock()
}

func TestMutexOwnerDiedTryLock(t *testing.T) {
	a := assert.New(t)
	m := NewPrivateMutex()
	lockAndDie(m)
	a.Equal(OwnerDied, tryLockDead(m))
	m.Unlock()
	a.Equal(Locked, m.TryLock())
	m.Unlock()
}

// A thread dying with several locks held must mark them all, and an
// unlocked one must stay clean.
func TestMutexOwnerDiedKeepsOthersClean(t *testing.T) {
	a := assert.New(t)
	m1, m2 := NewPrivateMutex(), NewPrivateMutex()
	done := make(chan struct{})
	go func() {
		defer close(done)
		m1.Lock()
		m2.Lock()
		m1.Unlock()
	}()
	<-done
	a.Equal(Locked, m1.TryLock())
	a.Equal(OwnerDied, tryLockDead(m2))
	m1.Unlock()
	m2.Unlock()
}

func TestNamedMutex(t *testing.T) {
	a := assert.New(t)
	if !a.NoError(DestroyMutex(testMutexName)) {
		return
	}
	m1, err := NewMutex(testMutexName, os.O_CREATE|os.O_EXCL, 0666)
	if !a.NoError(err) {
		return
	}
	m2, err := NewMutex(testMutexName, 0, 0666)
	if !a.NoError(err) {
		return
	}
	a.Equal(Locked, m1.TryLock())
	a.Equal(LockFailed, tryLockElsewhere(m2))
	m1.Unlock()
	a.Equal(Locked, tryLockElsewhere(m2))
	a.NoError(m1.Close())
	a.NoError(m2.Destroy())
}

func TestNamedMutexOpenMode(t *testing.T) {
	a := assert.New(t)
	if !a.NoError(DestroyMutex(testMutexName)) {
		return
	}
	_, err := NewMutex(testMutexName, 0, 0666)
	a.Error(err)
	m, err := NewMutex(testMutexName, os.O_CREATE, 0666)
	if !a.NoError(err) {
		return
	}
	_, err = NewMutex(testMutexName, os.O_CREATE|os.O_EXCL, 0666)
	a.Error(err)
	a.NoError(m.Destroy())
}
