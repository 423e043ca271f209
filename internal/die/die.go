// Copyright 2017 Aleksandr Demakin. All rights reserved.

// Package die terminates the process on programming errors, such as
// unlocking a mutex twice. Misuse of a synchronization primitive in a
// multi-process system must never be masked as a recoverable error,
// so the offending process is killed with a descriptive message.
package die

import (
	"fmt"
	"os"
	"sync/atomic"
)

var testMode uint32

// SetTestMode makes Die panic instead of terminating the process,
// so that death paths can be asserted from tests.
func SetTestMode(enabled bool) {
	var value uint32
	if enabled {
		value = 1
	}
	atomic.StoreUint32(&testMode, value)
}

// Die reports an unrecoverable programming error and terminates the process.
// In test mode it panics with the same message.
func Die(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if atomic.LoadUint32(&testMode) != 0 {
		panic(msg)
	}
	fmt.Fprintln(os.Stderr, "fatal: "+msg)
	os.Exit(1)
}
