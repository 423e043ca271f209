// Copyright 2017 Aleksandr Demakin. All rights reserved.

package queue

import (
	"reflect"

	"github.com/nxgtw/go-rtbus/sync"
)

// DefaultQueueSize is the capacity used by Fetch for a non-positive size.
const DefaultQueueSize = 200

// Observer is notified exactly once per queue creation, receiving the
// queue's canonical name and a type-erased handle. The logging and
// monitoring collaborators implement it. Observers are optional: their
// absence never affects queue creation or operation.
type Observer interface {
	QueueCreated(name string, q GenericQueue)
}

type queueKey struct {
	t    reflect.Type
	name string
}

// The registry map is guarded by the same class of lock the package
// exposes. A private mutex cannot observe owner death, so guarding the
// registry with it cannot deadlock the very primitive it protects.
var (
	allQueuesLock = sync.NewPrivateMutex()
	allQueues     = make(map[queueKey]GenericQueue)
	queueLogger   Observer
	queueWebDash  Observer
)

// Fetch returns the queue of type T with the given key, creating it with
// the given size if it does not exist yet. Exactly one queue instance
// exists per (type, key) pair for the lifetime of the process: creation is
// atomic under concurrent Fetch calls, the first creator wins, and size is
// ignored when the queue already exists.
func Fetch[T any](key string, size int) *MessageQueue[T] {
	k := queueKey{t: reflect.TypeOf((*T)(nil)).Elem(), name: key}
	l := sync.NewLocker(allQueuesLock)
	defer l.Release()
	if q, ok := allQueues[k]; ok {
		return q.(*MessageQueue[T])
	}
	q := NewMessageQueue[T](size)
	allQueues[k] = q
	name := CanonicalQueueName(k.t.Name(), key)
	if queueLogger != nil {
		queueLogger.QueueCreated(name, q)
	}
	if queueWebDash != nil {
		queueWebDash.QueueCreated(name, q)
	}
	return q
}

// SetLogger installs the logging collaborator. Queues created afterwards
// are announced to it exactly once each.
func SetLogger(o Observer) {
	l := sync.NewLocker(allQueuesLock)
	defer l.Release()
	queueLogger = o
}

// SetWebDash installs the monitoring collaborator.
func SetWebDash(o Observer) {
	l := sync.NewLocker(allQueuesLock)
	defer l.Release()
	queueWebDash = o
}

// ResetAllQueues discards the registries for all message types, so that
// independent test runs within one process start from a clean slate.
// Previously fetched queue handles stay usable, but are no longer reachable
// through Fetch.
func ResetAllQueues() {
	l := sync.NewLocker(allQueuesLock)
	defer l.Release()
	allQueues = make(map[queueKey]GenericQueue)
}
