// Copyright 2017 Aleksandr Demakin. All rights reserved.

// Package webdash collects live queue status for the driver station
// dashboard. It subscribes a latest-value reader to every queue announced
// by the registry; serving the data over the network is somebody else's
// job, the Runner only keeps the snapshot.
package webdash

import (
	"fmt"
	"io"
	"sort"

	"github.com/nxgtw/go-rtbus/queue"
	"github.com/nxgtw/go-rtbus/sync"

	"github.com/olekukonko/tablewriter"
)

// Runner is the monitoring collaborator of the queue registry.
// All methods are safe for concurrent use.
type Runner struct {
	mu      *sync.Mutex
	entries []*entry
}

type entry struct {
	name   string
	q      queue.GenericQueue
	reader queue.GenericReader
}

// QueueStatus is a point-in-time view of a single queue.
type QueueStatus struct {
	Name      string
	Capacity  int
	Published uint64
	Latest    interface{} // nil until the first message is written
}

// New creates an empty Runner.
func New() *Runner {
	return &Runner{mu: sync.NewPrivateMutex()}
}

// QueueCreated subscribes a reader to the new queue.
// It implements queue.Observer.
func (r *Runner) QueueCreated(name string, q queue.GenericQueue) {
	l := sync.NewLocker(r.mu)
	defer l.Release()
	r.entries = append(r.entries, &entry{name: name, q: q, reader: q.MakeGenericReader()})
}

// Snapshot returns the current status of every observed queue,
// sorted by name.
func (r *Runner) Snapshot() []QueueStatus {
	l := sync.NewLocker(r.mu)
	defer l.Release()
	statuses := make([]QueueStatus, 0, len(r.entries))
	for _, e := range r.entries {
		status := QueueStatus{
			Name:      e.name,
			Capacity:  e.q.Capacity(),
			Published: e.q.MessageCount(),
		}
		if latest, ok := e.reader.ReadLastMessage(); ok {
			status.Latest = latest
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// WriteTable renders the snapshot as a text table, for inspection from a
// test console or a pit display.
func (r *Runner) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"queue", "capacity", "published", "latest"})
	for _, status := range r.Snapshot() {
		latest := ""
		if status.Latest != nil {
			latest = fmt.Sprintf("%+v", status.Latest)
		}
		table.Append([]string{
			status.Name,
			fmt.Sprint(status.Capacity),
			fmt.Sprint(status.Published),
			latest,
		})
	}
	table.Render()
}
