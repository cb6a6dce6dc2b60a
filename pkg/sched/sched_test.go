package sched_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spoolworks/spool/pkg/sched"
)

func TestAfterFires(t *testing.T) {
	s := sched.New()
	fired := make(chan struct{})

	s.After("t", 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	assert.False(t, s.Pending("t"))
}

func TestCancelPreventsFiring(t *testing.T) {
	s := sched.New()
	var fired atomic.Bool

	s.After("t", 20*time.Millisecond, func() { fired.Store(true) })
	assert.True(t, s.Pending("t"))
	assert.True(t, s.Cancel("t"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestAfterReplacesExisting(t *testing.T) {
	s := sched.New()
	var first, second atomic.Bool

	s.After("t", 20*time.Millisecond, func() { first.Store(true) })
	s.After("t", 20*time.Millisecond, func() { second.Store(true) })

	time.Sleep(60 * time.Millisecond)
	assert.False(t, first.Load(), "replaced timer must not fire")
	assert.True(t, second.Load())
}

func TestEveryTicks(t *testing.T) {
	s := sched.New()
	var ticks atomic.Int32

	s.Every("hc", 10*time.Millisecond, func() { ticks.Add(1) })
	time.Sleep(55 * time.Millisecond)
	s.Cancel("hc")

	got := ticks.Load()
	assert.GreaterOrEqual(t, got, int32(2))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, got, ticks.Load(), "ticker must stop after cancel")
}

func TestCancelAll(t *testing.T) {
	s := sched.New()
	var fired atomic.Int32

	s.After("a", 20*time.Millisecond, func() { fired.Add(1) })
	s.After("b", 20*time.Millisecond, func() { fired.Add(1) })
	s.Every("c", 10*time.Millisecond, func() { fired.Add(1) })

	s.CancelAll()
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, fired.Load())
	assert.False(t, s.Pending("a"))
	assert.False(t, s.Pending("c"))
}

func TestCancelUnknownName(t *testing.T) {
	s := sched.New()
	assert.False(t, s.Cancel("nope"))
}
