// Copyright 2017 Aleksandr Demakin. All rights reserved.

// Package logging persists queue traffic to durable storage. A Logger
// subscribes a reader to every queue announced by the registry and writes
// each published message as a csv row, one file per queue, grouped into a
// uniquely named directory per run.
package logging

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/nxgtw/go-rtbus/queue"
	"github.com/nxgtw/go-rtbus/sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Logger is the logging collaborator of the queue registry.
// All methods are safe for concurrent use.
type Logger struct {
	mu     *sync.Mutex
	runDir string
	logs   []*queueLog
}

type queueLog struct {
	name   string
	reader queue.GenericReader
	file   *os.File
	writer *csv.Writer
	header []string
}

// New creates a Logger writing under dir. Each run gets its own
// subdirectory, named by a fresh run id, so that consecutive runs on the
// same robot never clobber each other's data.
func New(dir string) (*Logger, error) {
	runDir := filepath.Join(dir, uuid.New().String())
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}
	return &Logger{mu: sync.NewPrivateMutex(), runDir: runDir}, nil
}

// RunDir returns the directory this run's csv files are written to.
func (l *Logger) RunDir() string {
	return l.runDir
}

// QueueCreated subscribes a reader to the new queue and opens its csv
// file. It implements queue.Observer. A queue whose file cannot be opened
// is skipped: logging failures must never affect queue creation.
func (l *Logger) QueueCreated(name string, q queue.GenericQueue) {
	file, err := os.Create(filepath.Join(l.runDir, name+".csv"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: failed to open log for queue %s: %v\n", name, err)
		return
	}
	locker := sync.NewLocker(l.mu)
	defer locker.Release()
	l.logs = append(l.logs, &queueLog{
		name:   name,
		reader: q.MakeGenericReader(),
		file:   file,
		writer: csv.NewWriter(file),
	})
}

// Flush drains every subscribed reader, appending one csv row per message,
// and syncs the files. The first error is returned, but all queues are
// drained regardless.
func (l *Logger) Flush() error {
	locker := sync.NewLocker(l.mu)
	defer locker.Release()
	var firstErr error
	for _, log := range l.logs {
		if err := log.drain(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to flush queue %s", log.name)
		}
	}
	return firstErr
}

// Run polls the queues with the given period until the context is
// cancelled, then makes a final flush and closes the files.
func (l *Logger) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := l.Flush(); err != nil {
				// the files must not leak when a flush fails mid-run.
				l.Close()
				return err
			}
		case <-ctx.Done():
			return l.Close()
		}
	}
}

// Close flushes and closes all log files. The logger must not be used
// afterwards.
func (l *Logger) Close() error {
	firstErr := l.Flush()
	locker := sync.NewLocker(l.mu)
	defer locker.Release()
	for _, log := range l.logs {
		if err := log.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close log of queue %s", log.name)
		}
	}
	l.logs = nil
	return firstErr
}

func (log *queueLog) drain() error {
	wrote := false
	for {
		msg, ok := log.reader.ReadMessage()
		if !ok {
			break
		}
		header, record := encodeMessage(msg)
		if log.header == nil {
			log.header = header
			if err := log.writer.Write(header); err != nil {
				return err
			}
		}
		if err := log.writer.Write(record); err != nil {
			return err
		}
		wrote = true
	}
	if !wrote {
		return nil
	}
	log.writer.Flush()
	if err := log.writer.Error(); err != nil {
		return err
	}
	return log.file.Sync()
}

// encodeMessage flattens a message into csv header and record. Struct
// fields become columns; any other type becomes a single value column.
// A timestamp column always comes first.
func encodeMessage(msg interface{}) (header, record []string) {
	header = []string{"timestamp"}
	record = []string{time.Now().Format(time.RFC3339Nano)}
	v := reflect.ValueOf(msg)
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		header = append(header, "value")
		record = append(record, fmt.Sprint(msg))
		return header, record
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		header = append(header, queue.CamelToSnake(field.Name))
		record = append(record, fmt.Sprint(v.Field(i).Interface()))
	}
	return header, record
}
