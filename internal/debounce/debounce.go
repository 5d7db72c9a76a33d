// Package debounce coalesces bursts of change notifications per project.
package debounce

import (
	"sync"
	"time"
)

// Debouncer calls fn once per key after window has passed without another
// Trigger for that key. fn runs on its own goroutine; calls for different keys
// may overlap.
type Debouncer struct {
	window time.Duration
	fn     func(key string)

	mu      sync.Mutex
	timers  map[string]*entry
	stopped bool
	running sync.WaitGroup
}

type entry struct {
	timer *time.Timer
}

func New(window time.Duration, fn func(key string)) *Debouncer {
	return &Debouncer{window: window, fn: fn, timers: make(map[string]*entry)}
}

// Trigger schedules fn(key), pushing back any call already pending for key.
// It reports false once the debouncer is stopped.
func (d *Debouncer) Trigger(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if e, ok := d.timers[key]; ok {
		e.timer.Stop()
	}
	e := &entry{}
	d.timers[key] = e
	e.timer = time.AfterFunc(d.window, func() { d.fire(key, e) })
	return true
}

// fire runs fn for key unless e has been superseded by a later Trigger.
func (d *Debouncer) fire(key string, e *entry) {
	d.mu.Lock()
	if d.stopped || d.timers[key] != e {
		d.mu.Unlock()
		return
	}
	delete(d.timers, key)
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	d.fn(key)
}

// Pending returns the number of keys waiting for their window to elapse.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Flush runs every pending call now and waits for all calls to finish.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	due := make(map[string]*entry, len(d.timers))
	for k, e := range d.timers {
		if e.timer.Stop() {
			due[k] = e
		}
	}
	d.mu.Unlock()

	for k, e := range due {
		d.fire(k, e)
	}
	d.running.Wait()
}

// Stop drops pending calls and waits for calls already running.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for k, e := range d.timers {
		e.timer.Stop()
		delete(d.timers, k)
	}
	d.mu.Unlock()
	d.running.Wait()
}
