// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

// Package shmem maps POSIX shared memory objects into the process'
// address space. It is the backing store for named robust mutexes.
package shmem

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	maxNameLen     = 255
	defaultShmPath = "/dev/shm/"
)

// Region is a shared memory object mapped into the process' address space.
type Region struct {
	data    []byte
	name    string
	created bool
}

// NewRegion opens or creates a shared memory object with the given name and
// maps it read-write.
//	name - object name. must not contain '/' or exceed 255 symbols.
//	flag - a combination of open flags from the 'os' package:
//		os.O_CREATE, os.O_EXCL, or 0 to open an existing object.
//	perm - object's permission bits.
//	size - region size. it is set only if the object was created.
func NewRegion(name string, flag int, perm os.FileMode, size int) (*Region, error) {
	path, err := shmPath(name)
	if err != nil {
		return nil, err
	}
	file, created, err := openOrCreate(path, flag, perm)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open shm object")
	}
	defer file.Close()
	if created {
		if err = file.Truncate(int64(size)); err != nil {
			os.Remove(path)
			return nil, errors.Wrap(err, "failed to truncate shm object")
		}
	} else {
		fi, err := file.Stat()
		if err != nil {
			return nil, errors.Wrap(err, "failed to stat shm object")
		}
		if fi.Size() < int64(size) {
			return nil, errors.Errorf("existing shm object has invalid size %d", fi.Size())
		}
	}
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if created {
			os.Remove(path)
		}
		return nil, errors.Wrap(err, "mmap failed")
	}
	return &Region{data: data, name: name, created: created}, nil
}

// Data returns the mapped memory.
func (r *Region) Data() []byte {
	return r.data
}

// Created returns true, if the underlying shm object was created by this call,
// and false, if an existing one was opened.
func (r *Region) Created() bool {
	return r.created
}

// Close unmaps the region. The underlying object is left in place.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	return errors.Wrap(err, "munmap failed")
}

// Destroy removes a shared memory object with the given name.
// It is not an error to destroy an object which does not exist.
func Destroy(name string) error {
	path, err := shmPath(name)
	if err != nil {
		return err
	}
	if err = os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove shm object")
	}
	return nil
}

func openOrCreate(path string, flag int, perm os.FileMode) (*os.File, bool, error) {
	switch flag {
	case 0:
		file, err := os.OpenFile(path, os.O_RDWR, perm)
		return file, false, err
	case os.O_CREATE | os.O_EXCL:
		file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		return file, err == nil, err
	case os.O_CREATE:
		// racing creators must agree on who actually created the object,
		// so open-or-create is done in exclusive steps.
		const attempts = 16
		var err error
		for attempt := 0; attempt < attempts; attempt++ {
			var file *os.File
			if file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm); !os.IsExist(err) {
				return file, err == nil, err
			}
			if file, err = os.OpenFile(path, os.O_RDWR, perm); !os.IsNotExist(err) {
				return file, false, err
			}
		}
		return nil, false, err
	default:
		return nil, false, errors.Errorf("invalid open flags %#x", flag)
	}
}

func shmPath(name string) (string, error) {
	name = strings.TrimLeft(name, "/")
	if len(name) == 0 || len(name) >= maxNameLen || strings.Contains(name, "/") {
		return "", errors.New("invalid shm name")
	}
	return defaultShmPath + name, nil
}
