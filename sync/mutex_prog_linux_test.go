// Copyright 2017 Aleksandr Demakin. All rights reserved.

//go:build linux

package sync

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
)

// holderEnv makes the test binary act as a lock holder instead of running
// the tests: it names the mutex the child must acquire and die holding.
const holderEnv = "GO_RTBUS_TEST_MUTEX_HOLDER"

// runMutexHolder is the child process's entire life: open the named mutex,
// acquire it, report that on stdout, and exit without unlocking.
// It never returns.
func runMutexHolder(name string) {
	m, err := NewMutex(name, 0, 0666)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	m.Lock()
	fmt.Println("locked")
	os.Exit(1)
}

// A separate process dies while holding a named mutex; the survivor must
// acquire the lock and receive the owner-died signal exactly once.
func TestMutexOwnerProcessDied(t *testing.T) {
	a := assert.New(t)
	name := fmt.Sprintf("go-rtbus.test.holder.%d", os.Getpid())
	if !a.NoError(DestroyMutex(name)) {
		return
	}
	m, err := NewMutex(name, os.O_CREATE|os.O_EXCL, 0666)
	if !a.NoError(err) {
		return
	}
	defer m.Destroy()

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), holderEnv+"="+name)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if !a.NoError(err) {
		return
	}
	if !a.NoError(cmd.Start()) {
		return
	}
	scanner := bufio.NewScanner(stdout)
	if !a.True(scanner.Scan(), "the holder never reported its acquisition") {
		cmd.Process.Kill()
		cmd.Wait()
		return
	}
	a.Equal("locked", scanner.Text())
	a.Error(cmd.Wait())

	a.True(m.Lock())
	m.Unlock()
	a.Equal(Locked, m.TryLock())
	m.Unlock()
}
