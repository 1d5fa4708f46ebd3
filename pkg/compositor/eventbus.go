// EventBus: per-window bounded FIFO event queues backed by
// github.com/beeker1121/goque, matching spec.md §4.7's "bounded capacity,
// overflow drops the oldest" over a concrete disk-backed queue the same
// way pkg/virtualizers/iputil.NewIPStack uses goque for its own bounded
// work queue.
package compositor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/beeker1121/goque"
)

// eventQueue is a bounded, disk-backed FIFO of Events for one window.
type eventQueue struct {
	q        *goque.Queue
	dir      string
	capacity int
	notify   chan struct{}
}

func newEventQueue(capacity int) *eventQueue {
	dir, err := os.MkdirTemp("", "badgevms-eventbus-*")
	if err != nil {
		// The physical keyboard/compositor event path has no recovery
		// option for a temp-dir failure; fall back to a fixed-pattern
		// queue directory under os.TempDir() rather than panicking the
		// caller.
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("badgevms-eventbus-%d", time.Now().UnixNano()))
		_ = os.MkdirAll(dir, 0o755)
	}

	q, err := goque.OpenQueue(dir)
	if err != nil {
		// A queue that can't open leaves the window without event
		// storage: Push then discards events and Pop always reports
		// none. goque.OpenQueue only fails on a broken backing directory,
		// which on a real badge would be a filesystem fault outside this
		// package's remit.
		q = nil
	}

	return &eventQueue{
		q:        q,
		dir:      dir,
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

func (eq *eventQueue) signal() {
	select {
	case eq.notify <- struct{}{}:
	default:
	}
}

// Push enqueues ev, dropping the oldest queued event first if the queue is
// at capacity (spec.md §4.7: "overflow drops the oldest").
func (eq *eventQueue) Push(ev Event) {
	if eq.q == nil {
		return
	}

	for eq.q.Length() >= uint64(eq.capacity) {
		if _, err := eq.q.Dequeue(); err != nil {
			break
		}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if _, err := eq.q.Enqueue(data); err != nil {
		return
	}
	eq.signal()
}

// Pop dequeues the next event, or EventNone if empty.
func (eq *eventQueue) Pop() (Event, bool) {
	if eq.q == nil {
		return Event{Type: EventNone}, false
	}

	item, err := eq.q.Dequeue()
	if err != nil {
		return Event{Type: EventNone}, false
	}

	var ev Event
	if err := json.Unmarshal(item.Value, &ev); err != nil {
		return Event{Type: EventNone}, false
	}
	return ev, true
}

// Close releases the queue's on-disk storage.
func (eq *eventQueue) Close() {
	if eq.q != nil {
		eq.q.Close()
	}
	os.RemoveAll(eq.dir)
}

// PushEvent delivers ev into w's event queue (called by the keyboard
// driver and by the compositor itself for resize/quit events).
func (w *Window) PushEvent(ev Event) {
	w.events.Push(ev)
}

// WindowEventPoll delivers the next event for w; when blocking is false
// and none is available it returns Event{Type: EventNone} immediately, and
// when blocking is true it waits up to timeout (zero means wait
// indefinitely), per spec.md §4.7.
func (w *Window) WindowEventPoll(blocking bool, timeout time.Duration) Event {
	if ev, ok := w.events.Pop(); ok {
		return ev
	}
	if !blocking {
		return Event{Type: EventNone}
	}

	deadline := time.NewTimer(timeout)
	if timeout <= 0 {
		deadline.Stop()
	}
	defer deadline.Stop()

	for {
		var timeoutCh <-chan time.Time
		if timeout > 0 {
			timeoutCh = deadline.C
		}
		select {
		case <-w.events.notify:
			if ev, ok := w.events.Pop(); ok {
				return ev
			}
		case <-timeoutCh:
			return Event{Type: EventNone}
		}
	}
}

// destroyEvents releases w's event queue storage; called by Compositor.WindowDestroy.
func (w *Window) destroyEvents() {
	w.events.Close()
}
