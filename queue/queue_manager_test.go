// Copyright 2017 Aleksandr Demakin. All rights reserved.

package queue

import (
	gosync "sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testStatus struct {
	Position float64
}

type testGoal struct {
	Target float64
}

type recordingObserver struct {
	mu     gosync.Mutex
	events []string
}

func (o *recordingObserver) QueueCreated(name string, q GenericQueue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, name)
}

func (o *recordingObserver) names() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func resetObservers() {
	SetLogger(nil)
	SetWebDash(nil)
	ResetAllQueues()
}

func TestFetchSameInstance(t *testing.T) {
	a := assert.New(t)
	defer resetObservers()
	ResetAllQueues()

	q1 := Fetch[testStatus]("left", 10)
	q2 := Fetch[testStatus]("left", 10)
	a.True(q1 == q2)
}

func TestFetchDistinguishesKeyAndType(t *testing.T) {
	a := assert.New(t)
	defer resetObservers()
	ResetAllQueues()

	left := Fetch[testStatus]("left", 10)
	right := Fetch[testStatus]("right", 10)
	a.False(left == right)

	// same key, different type: separate queues.
	goals := Fetch[testGoal]("left", 10)
	goals.WriteMessage(testGoal{Target: 1})
	_, ok := left.MakeReader().ReadMessage()
	a.False(ok)
}

func TestFetchFirstCreatorWins(t *testing.T) {
	a := assert.New(t)
	defer resetObservers()
	ResetAllQueues()

	q1 := Fetch[testStatus]("sizes", 7)
	q2 := Fetch[testStatus]("sizes", 50)
	a.True(q1 == q2)
	a.Equal(7, q2.Capacity())
}

func TestFetchConcurrent(t *testing.T) {
	a := assert.New(t)
	defer resetObservers()
	ResetAllQueues()

	obs := &recordingObserver{}
	SetLogger(obs)

	const goroutines = 16
	var wg gosync.WaitGroup
	var results [goroutines]*MessageQueue[testStatus]
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Fetch[testStatus]("race", 10)
		}(i)
	}
	wg.Wait()
	for i := 1; i < goroutines; i++ {
		a.True(results[0] == results[i])
	}
	// the winning creator announces the queue exactly once.
	a.Equal([]string{"test_status_race"}, obs.names())
}

func TestFetchNotifiesObservers(t *testing.T) {
	a := assert.New(t)
	defer resetObservers()
	ResetAllQueues()

	logger := &recordingObserver{}
	dash := &recordingObserver{}
	SetLogger(logger)
	SetWebDash(dash)

	Fetch[testStatus]("drivetrain", 10)
	Fetch[testStatus]("drivetrain", 10) // no second event
	Fetch[testGoal]("drivetrain", 10)

	want := []string{"test_status_drivetrain", "test_goal_drivetrain"}
	a.Equal(want, logger.names())
	a.Equal(want, dash.names())
}

func TestResetAllQueues(t *testing.T) {
	a := assert.New(t)
	defer resetObservers()
	ResetAllQueues()

	q1 := Fetch[testStatus]("reset", 10)
	q1.WriteMessage(testStatus{Position: 1})
	ResetAllQueues()
	q2 := Fetch[testStatus]("reset", 10)
	a.False(q1 == q2)
	_, ok := q2.MakeReader().ReadMessage()
	a.False(ok)

	// the old handle keeps working after the reset.
	q1.WriteMessage(testStatus{Position: 2})
	a.EqualValues(2, q1.MessageCount())
}

type countingObserver struct {
	calls int32
}

func (o *countingObserver) QueueCreated(string, GenericQueue) {
	atomic.AddInt32(&o.calls, 1)
}

func TestObserverNotCalledForExisting(t *testing.T) {
	a := assert.New(t)
	defer resetObservers()
	ResetAllQueues()

	Fetch[testStatus]("pre", 10)
	obs := &countingObserver{}
	SetLogger(obs)
	Fetch[testStatus]("pre", 10)
	a.EqualValues(0, atomic.LoadInt32(&obs.calls))
	Fetch[testStatus]("post", 10)
	a.EqualValues(1, atomic.LoadInt32(&obs.calls))
}
