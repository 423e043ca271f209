// Copyright 2017 Aleksandr Demakin. All rights reserved.

// Package allocator converts between byte slices and raw pointers for
// objects placed into shared memory regions.
package allocator

import (
	"reflect"
	"runtime"
	"unsafe"
)

// ByteSliceData returns a pointer to the data of the given byte slice.
func ByteSliceData(slice []byte) unsafe.Pointer {
	header := (*reflect.SliceHeader)(unsafe.Pointer(&slice))
	return unsafe.Pointer(header.Data)
}

// AdvancePointer adds shift value to the 'p' pointer.
func AdvancePointer(p unsafe.Pointer, shift uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) + shift)
}

// Use is a no-op, but the compiler cannot see that it is.
// Calling Use(p) ensures that p is kept live until that point.
func Use(p unsafe.Pointer) {
	runtime.KeepAlive(p)
}
