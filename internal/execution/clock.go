package execution

import (
	"container/heap"
	"sync"
	"time"
)

// Clock schedules callbacks at absolute nanosecond timestamps. A backtest
// uses the virtual clock driven by the replay engine; a live deployment
// swaps in the real clock without touching slicing logic.
type Clock interface {
	// NowNs returns the current time in nanoseconds.
	NowNs() int64

	// SetAlarm schedules fn to run at ts. Returns a cancel func; after
	// cancel returns, the callback is guaranteed not to fire.
	SetAlarm(ts int64, fn func(nowNs int64)) (cancel func())
}

// alarm is one pending callback in the virtual clock's queue.
type alarm struct {
	ts        int64
	seq       int64 // insertion order, breaks timestamp ties
	fn        func(nowNs int64)
	cancelled bool
	index     int
}

type alarmQueue []*alarm

func (q alarmQueue) Len() int { return len(q) }
func (q alarmQueue) Less(i, j int) bool {
	if q[i].ts != q[j].ts {
		return q[i].ts < q[j].ts
	}
	return q[i].seq < q[j].seq
}
func (q alarmQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *alarmQueue) Push(x any) {
	a := x.(*alarm)
	a.index = len(*q)
	*q = append(*q, a)
}
func (q *alarmQueue) Pop() any {
	old := *q
	n := len(old)
	a := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return a
}

// VirtualClock is a deterministic clock driven by explicit advancement.
// Alarms fire in (timestamp, insertion order), so same-timestamp callbacks
// run in the order they were scheduled.
type VirtualClock struct {
	mu    sync.Mutex
	now   int64
	queue alarmQueue
	seq   int64
}

// NewVirtualClock creates a virtual clock positioned at startNs.
func NewVirtualClock(startNs int64) *VirtualClock {
	return &VirtualClock{now: startNs}
}

// Compile-time interface check.
var _ Clock = (*VirtualClock)(nil)

// NowNs returns the virtual time.
func (c *VirtualClock) NowNs() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// SetAlarm schedules fn at ts. Alarms set at or before the current virtual
// time fire on the next advance, not synchronously; callers wanting
// immediate execution must invoke fn directly.
func (c *VirtualClock) SetAlarm(ts int64, fn func(nowNs int64)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	a := &alarm{ts: ts, seq: c.seq, fn: fn}
	c.seq++
	heap.Push(&c.queue, a)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		a.cancelled = true
	}
}

// AdvanceTo moves virtual time forward to ts, firing due alarms in order.
// Callbacks observe the alarm's own timestamp as "now".
func (c *VirtualClock) AdvanceTo(ts int64) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 || c.queue[0].ts > ts {
			if ts > c.now {
				c.now = ts
			}
			c.mu.Unlock()
			return
		}
		a := heap.Pop(&c.queue).(*alarm)
		if a.cancelled {
			c.mu.Unlock()
			continue
		}
		if a.ts > c.now {
			c.now = a.ts
		}
		now := c.now
		c.mu.Unlock()

		// Fire outside the lock so callbacks may schedule or cancel.
		a.fn(now)
	}
}

// PendingAlarms returns the number of uncancelled alarms in the queue.
func (c *VirtualClock) PendingAlarms() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, a := range c.queue {
		if !a.cancelled {
			n++
		}
	}
	return n
}

// RealClock implements Clock over the system timer for live execution.
type RealClock struct{}

// Compile-time interface check.
var _ Clock = RealClock{}

// NowNs returns the wall clock in nanoseconds.
func (RealClock) NowNs() int64 { return time.Now().UnixNano() }

// SetAlarm schedules fn on a system timer.
func (RealClock) SetAlarm(ts int64, fn func(nowNs int64)) func() {
	delay := time.Duration(ts - time.Now().UnixNano())
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() {
		fn(time.Now().UnixNano())
	})
	return func() { timer.Stop() }
}
