// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

// Package common holds syscall helpers shared by the sync and shm layers.
package common

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// TimeoutToTimeSpec converts a relative timeout into a unix.Timespec.
// A negative timeout means "wait forever" and yields a nil pointer.
func TimeoutToTimeSpec(timeout time.Duration) *unix.Timespec {
	if timeout >= 0 {
		ts := unix.NsecToTimespec(timeout.Nanoseconds())
		return &ts
	}
	return nil
}

// IsTimeoutErr returns true, if the given error is a wait timeout.
func IsTimeoutErr(err error) bool {
	return SyscallErrHasCode(err, syscall.ETIMEDOUT) || SyscallErrHasCode(err, syscall.EAGAIN)
}

// IsInterruptedSyscallErr returns true, if the given error is EINTR.
func IsInterruptedSyscallErr(err error) bool {
	return SyscallErrHasCode(err, syscall.EINTR)
}

// SyscallErrHasCode returns true, if the given error is a syscall error
// with the given errno.
func SyscallErrHasCode(err error, code syscall.Errno) bool {
	if sysErr, ok := err.(*os.SyscallError); ok {
		if errno, ok := sysErr.Err.(syscall.Errno); ok {
			return errno == code
		}
	}
	return false
}

// UninterruptedSyscall repeats a syscall until it succeeds or fails
// with an error other than EINTR.
func UninterruptedSyscall(f func() error) error {
	for {
		err := f()
		if err == nil || !IsInterruptedSyscallErr(err) {
			return err
		}
	}
}
