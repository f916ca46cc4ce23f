package j1939

import (
	"runtime"
	"time"
)

// Clock is the time collaborator the engine is built against. NowMS must
// be monotonic and is allowed to wrap at 2^32; Elapsed is wrap-safe with
// respect to that.
type Clock interface {
	NowMS() uint32
	Yield()
}

// SystemClock implements Clock over the process's monotonic clock.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a Clock anchored to the current time.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowMS returns milliseconds elapsed since the clock was created, truncated
// to a wrapping uint32.
func (c *SystemClock) NowMS() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Yield cooperatively yields the current goroutine. The engine's own
// suspension points are channel/timer based and do not busy-spin; nothing
// in the engine calls this.
func (c *SystemClock) Yield() {
	runtime.Gosched()
}

// Elapsed reports whether limitMS milliseconds have passed since anchor,
// using modular subtraction so a single wrap of the millisecond counter is
// handled correctly.
func Elapsed(now, anchor, limitMS uint32) bool {
	delta := now - anchor // wraps correctly: unsigned subtraction mod 2^32
	return delta > limitMS
}
