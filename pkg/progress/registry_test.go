package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAdvanceCompleteDeliversTerminal(t *testing.T) {
	r := NewRegistry(10*time.Millisecond, 200*time.Millisecond, 16)
	h := r.Open("op-1", 100)

	sub := r.Subscribe("op-1")

	r.Advance(h, 50, "halfway")
	r.Complete(h, "done")

	var last Snapshot
	for snap := range sub.Stream() {
		last = snap
	}

	assert.True(t, last.Terminal())
	assert.Equal(t, Completed, last.Status)
}

func TestSubscribeUnknownOperationYieldsNotFound(t *testing.T) {
	r := NewRegistry(500*time.Millisecond, 120*time.Second, 16)
	sub := r.Subscribe("does-not-exist")

	snap, ok := <-sub.Stream()
	require.True(t, ok)
	assert.Equal(t, Failed, snap.Status)
	assert.Equal(t, "not_found", snap.Error)

	_, ok = <-sub.Stream()
	assert.False(t, ok)
}

func TestMonotoneBytesProcessed(t *testing.T) {
	r := NewRegistry(time.Millisecond, 120*time.Second, 16)
	h := r.Open("op-2", 1000)
	sub := r.Subscribe("op-2")

	r.Advance(h, 100, "")
	r.Advance(h, 200, "")
	r.Complete(h, "")

	var prev int64
	for snap := range sub.Stream() {
		assert.GreaterOrEqual(t, snap.BytesProcessed, prev)
		prev = snap.BytesProcessed
	}
	assert.Equal(t, int64(300), prev)
}

func TestFailPublishesErrorLabel(t *testing.T) {
	r := NewRegistry(time.Millisecond, 120*time.Second, 16)
	h := r.Open("op-3", 0)
	sub := r.Subscribe("op-3")

	r.Fail(h, "digest_mismatch")

	var last Snapshot
	for snap := range sub.Stream() {
		last = snap
	}
	assert.Equal(t, Failed, last.Status)
	assert.Equal(t, "digest_mismatch", last.Error)
}

func TestSlowSubscriberDoesNotBlockFastSubscriber(t *testing.T) {
	r := NewRegistry(time.Millisecond, 120*time.Second, 16)
	h := r.Open("op-4", 0)

	fast := r.Subscribe("op-4")
	slow := r.Subscribe("op-4")

	// The fast subscriber drains concurrently; the slow one reads nothing
	// until every advance has been made.
	fastDone := make(chan Snapshot, 1)
	go func() {
		var last Snapshot
		for snap := range fast.Stream() {
			last = snap
		}
		fastDone <- last
	}()

	for i := 0; i < 100; i++ {
		r.Advance(h, 1, "")
		time.Sleep(time.Millisecond)
	}
	r.Complete(h, "")

	fastLast := <-fastDone
	assert.True(t, fastLast.Terminal())

	var slowLast Snapshot
	for snap := range slow.Stream() {
		slowLast = snap
	}
	assert.True(t, slowLast.Terminal())
}

func TestUnsubscribeDoesNotAffectOperation(t *testing.T) {
	r := NewRegistry(time.Millisecond, 120*time.Second, 16)
	h := r.Open("op-5", 10)
	sub := r.Subscribe("op-5")

	initial, ok := <-sub.Stream()
	require.True(t, ok)
	assert.Equal(t, InProgress, initial.Status)

	r.Unsubscribe("op-5", sub)
	_, open := <-sub.Stream()
	assert.False(t, open)

	r.Advance(h, 5, "")
	r.Complete(h, "")

	snap, ok := r.Snapshot("op-5")
	require.True(t, ok)
	assert.Equal(t, Completed, snap.Status)
}
