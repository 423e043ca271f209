// Copyright 2017 Aleksandr Demakin. All rights reserved.

// Package queue implements the typed broadcast message bus of the control
// stack: bounded multi-reader queues and the process-wide registry which
// hands them out by message type and name.
package queue

import (
	"github.com/nxgtw/go-rtbus/sync"
)

// MessageQueue is a bounded broadcast channel for messages of type T.
// It keeps the size most recent messages in a ring; writers never block
// and never fail, and slow readers miss overwritten messages instead of
// applying backpressure. Real-time consumers prefer a fresh value over a
// complete history.
type MessageQueue[T any] struct {
	mu       *sync.Mutex
	messages []T
	next     uint64 // sequence number of the next message to be written
}

// NewMessageQueue creates a queue holding the size most recent messages.
// A non-positive size falls back to DefaultQueueSize.
func NewMessageQueue[T any](size int) *MessageQueue[T] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &MessageQueue[T]{
		mu:       sync.NewPrivateMutex(),
		messages: make([]T, size),
	}
}

// WriteMessage publishes a message, overwriting the oldest one if the
// ring is full. The message is assigned the next sequence number and is
// immutable once published.
func (q *MessageQueue[T]) WriteMessage(msg T) {
	l := sync.NewLocker(q.mu)
	defer l.Release()
	q.messages[q.next%uint64(len(q.messages))] = msg
	q.next++
}

// MakeReader creates an independent reader which has observed no messages.
func (q *MessageQueue[T]) MakeReader() *QueueReader[T] {
	return &QueueReader[T]{queue: q}
}

// Capacity returns the number of messages the queue retains.
func (q *MessageQueue[T]) Capacity() int {
	return len(q.messages)
}

// MessageCount returns the total number of messages written so far.
func (q *MessageQueue[T]) MessageCount() uint64 {
	l := sync.NewLocker(q.mu)
	defer l.Release()
	return q.next
}

// MakeGenericReader creates a type-erased reader for queue observers.
func (q *MessageQueue[T]) MakeGenericReader() GenericReader {
	return genericReader[T]{r: q.MakeReader()}
}

// QueueReader walks the history of a queue at its own pace. Every reader
// has an independent cursor; readers never interfere with each other or
// with the writer.
type QueueReader[T any] struct {
	queue *MessageQueue[T]
	next  uint64 // sequence number of the oldest unobserved message
}

// ReadMessage returns the oldest message this reader has not yet observed,
// advancing the cursor, and false if the reader has caught up. If the
// writer has overwritten messages the cursor had not consumed, the cursor
// silently skips to the oldest message still present.
func (r *QueueReader[T]) ReadMessage() (T, bool) {
	q := r.queue
	l := sync.NewLocker(q.mu)
	defer l.Release()
	var zero T
	if r.next >= q.next {
		return zero, false
	}
	if size := uint64(len(q.messages)); q.next-r.next > size {
		r.next = q.next - size
	}
	msg := q.messages[r.next%uint64(len(q.messages))]
	r.next++
	return msg, true
}

// ReadLastMessage returns the most recently written message without
// advancing the cursor. Repeated calls with no intervening write return
// the same message.
func (r *QueueReader[T]) ReadLastMessage() (T, bool) {
	q := r.queue
	l := sync.NewLocker(q.mu)
	defer l.Release()
	var zero T
	if q.next == 0 {
		return zero, false
	}
	return q.messages[(q.next-1)%uint64(len(q.messages))], true
}

// GenericQueue is a type-erased view of a message queue, handed to queue
// observers, which cannot know concrete message types. Observers are
// expected to subscribe a reader; they never reach into queue internals.
type GenericQueue interface {
	Capacity() int
	MessageCount() uint64
	MakeGenericReader() GenericReader
}

// GenericReader mirrors QueueReader over type-erased messages.
type GenericReader interface {
	ReadMessage() (interface{}, bool)
	ReadLastMessage() (interface{}, bool)
}

type genericReader[T any] struct {
	r *QueueReader[T]
}

func (g genericReader[T]) ReadMessage() (interface{}, bool) {
	msg, ok := g.r.ReadMessage()
	if !ok {
		return nil, false
	}
	return msg, true
}

func (g genericReader[T]) ReadLastMessage() (interface{}, bool) {
	msg, ok := g.r.ReadLastMessage()
	if !ok {
		return nil, false
	}
	return msg, true
}
