// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"os"
	"time"
	"unsafe"

	"github.com/nxgtw/go-rtbus/internal/allocator"
	"github.com/nxgtw/go-rtbus/internal/common"

	"golang.org/x/sys/unix"
)

const (
	cFUTEX_WAIT = 0
	cFUTEX_WAKE = 1
)

// FutexWait checks if the value at addr equals value.
// If it does not, FutexWait returns EWOULDBLOCK.
// Otherwise, it waits for a FutexWake call on the address for not longer,
// than timeout. A negative timeout means an infinite wait.
func FutexWait(addr unsafe.Pointer, value uint32, timeout time.Duration, flags int32) error {
	ts := common.TimeoutToTimeSpec(timeout)
	return common.UninterruptedSyscall(func() error {
		_, err := futex(addr, cFUTEX_WAIT|flags, value, unsafe.Pointer(ts), nil, 0)
		return err
	})
}

// FutexWake wakes count threads waiting on the address.
// It returns the number of woken threads.
func FutexWake(addr unsafe.Pointer, count uint32, flags int32) (int, error) {
	var woken int32
	err := common.UninterruptedSyscall(func() error {
		var err error
		woken, err = futex(addr, cFUTEX_WAKE|flags, count, nil, nil, 0)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(woken), nil
}

func futex(addr unsafe.Pointer, op int32, val uint32, ts, addr2 unsafe.Pointer, val3 uint32) (int32, error) {
	r1, _, err := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(addr),
		uintptr(op),
		uintptr(val),
		uintptr(ts),
		uintptr(addr2),
		uintptr(val3))
	allocator.Use(addr)
	allocator.Use(addr2)
	allocator.Use(ts)
	if err != 0 {
		return 0, os.NewSyscallError("FUTEX", err)
	}
	return int32(r1), nil
}
